package pureav

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

type resampleContext struct {
	in, out av.AudioSpec
	// scratch, one slice per channel
	src, mixed [][]float32
}

// NewResampleContext implements av.ConvertEngine: sample format
// conversion, channel mixing and linear interpolation rate conversion.
// Calls are independent; no state carries over between frames.
func (e *Engine) NewResampleContext(in, out av.AudioSpec) (av.ResampleContext, error) {
	for _, s := range []av.AudioSpec{in, out} {
		if s.Channels <= 0 || s.SampleRate <= 0 || s.SampleFormat.BytesPerSample() == 0 {
			return nil, errors.Wrapf(av.ErrInvalidArgument, "pureav: audio format %d/%s/%d", s.Channels, s.SampleFormat, s.SampleRate)
		}
	}
	return &resampleContext{in: in, out: out}, nil
}

// outputSamples returns the number of samples produced for n input samples.
func (r *resampleContext) outputSamples(n int) int {
	return int(av.Rescale(int64(n), av.R(1, r.in.SampleRate), av.R(1, r.out.SampleRate)))
}

func (r *resampleContext) Convert(in, out *av.Frame) error {
	n := in.NbSamples
	m := r.outputSamples(n)
	if err := out.SetNbSamples(m); err != nil {
		return err
	}
	r.src = readSamples(in, r.src)
	r.mixed = mixChannels(r.src, r.out.Channels, r.mixed, n)
	for c := range r.mixed {
		r.mixed[c] = resampleLinear(r.mixed[c][:n], m)
	}
	writeSamples(r.mixed, out)
	out.PTS = in.PTS
	if in.PTS != av.NoPTS {
		out.PTS = av.Rescale(in.PTS, av.R(1, r.in.SampleRate), av.R(1, r.out.SampleRate))
	}
	out.Duration = int64(m)
	return nil
}

func (r *resampleContext) Close() error {
	r.src, r.mixed = nil, nil
	return nil
}

func grow(buf [][]float32, channels, n int) [][]float32 {
	if len(buf) != channels {
		buf = make([][]float32, channels)
	}
	for c := range buf {
		if cap(buf[c]) < n {
			buf[c] = make([]float32, n)
		}
		buf[c] = buf[c][:n]
	}
	return buf
}

// sampleAt decodes sample i of plane b as a float in [-1, 1).
func sampleAt(f av.SampleFormat, b []byte, i int) float32 {
	switch f {
	case av.SampleFormatS16, av.SampleFormatS16P:
		return float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
}

func putSample(f av.SampleFormat, b []byte, i int, v float32) {
	switch f {
	case av.SampleFormatS16, av.SampleFormatS16P:
		s := math.Round(float64(v) * 32768)
		s = max(min(s, math.MaxInt16), math.MinInt16)
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(s)))
	default:
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
}

func readSamples(f *av.Frame, buf [][]float32) [][]float32 {
	buf = grow(buf, f.Channels, f.NbSamples)
	for c := 0; c < f.Channels; c++ {
		for i := 0; i < f.NbSamples; i++ {
			if f.SampleFormat.Planar() {
				buf[c][i] = sampleAt(f.SampleFormat, f.Planes[c], i)
			} else {
				buf[c][i] = sampleAt(f.SampleFormat, f.Planes[0], i*f.Channels+c)
			}
		}
	}
	return buf
}

func writeSamples(buf [][]float32, f *av.Frame) {
	for c := 0; c < f.Channels; c++ {
		for i := 0; i < f.NbSamples; i++ {
			if f.SampleFormat.Planar() {
				putSample(f.SampleFormat, f.Planes[c], i, buf[c][i])
			} else {
				putSample(f.SampleFormat, f.Planes[0], i*f.Channels+c, buf[c][i])
			}
		}
	}
}

// mixChannels maps src onto channels outputs. Mono is duplicated; a
// down-mix averages the inputs that fold onto each output (input c goes
// to output c mod channels).
func mixChannels(src [][]float32, channels int, buf [][]float32, n int) [][]float32 {
	buf = grow(buf, channels, n)
	in := len(src)
	for o := 0; o < channels; o++ {
		dst := buf[o]
		switch {
		case in == channels:
			copy(dst, src[o])
		case in == 1:
			copy(dst, src[0])
		case in < channels:
			copy(dst, src[o%in])
		default:
			clear(dst)
			count := 0
			for c := o; c < in; c += channels {
				for i := range dst {
					dst[i] += src[c][i]
				}
				count++
			}
			for i := range dst {
				dst[i] /= float32(count)
			}
		}
	}
	return buf
}

// resampleLinear stretches s to m samples by linear interpolation. s is
// returned as is when no rate change is needed.
func resampleLinear(s []float32, m int) []float32 {
	n := len(s)
	if n == m {
		return s
	}
	out := make([]float32, m)
	if n == 0 {
		return out
	}
	step := float64(n) / float64(max(m, 1))
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= n-1 {
			out[i] = s[n-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = s[j]*(1-frac) + s[j+1]*frac
	}
	return out
}
