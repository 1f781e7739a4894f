package avtest

import (
	"io"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

type bsfContext struct {
	engine   *Engine
	behavior FilterBehavior
	par      av.CodecParameters
	queue    []*av.Packet
	sends    int
	flushed  bool
}

func (b *bsfContext) SetInputParameters(par av.CodecParameters, _ av.Rational) error {
	b.par = par
	return nil
}

func (b *bsfContext) Init() error {
	b.engine.count("InitBSF")
	if b.behavior.FailInit {
		return ErrInjected
	}
	return nil
}

func (b *bsfContext) SendPacket(pkt *av.Packet) error {
	b.engine.count("SendBSF")
	if b.flushed {
		return io.EOF
	}
	if pkt == nil {
		b.flushed = true
		return nil
	}
	if b.behavior.FailSend {
		return ErrInjected
	}
	n := 1
	if len(b.behavior.Outputs) > 0 {
		n = b.behavior.Outputs[b.sends%len(b.behavior.Outputs)]
	}
	b.sends++
	for i := 0; i < n; i++ {
		b.queue = append(b.queue, pkt.Clone())
	}
	return nil
}

func (b *bsfContext) ReceivePacket(pkt *av.Packet) error {
	b.engine.count("ReceiveBSF")
	if len(b.queue) == 0 {
		if b.flushed {
			return io.EOF
		}
		return av.ErrAgain
	}
	b.queue[0].MoveRef(pkt)
	b.queue = b.queue[1:]
	return nil
}

func (b *bsfContext) OutputParameters() av.CodecParameters { return b.par }

func (b *bsfContext) Close() error {
	for _, p := range b.queue {
		p.Unref()
	}
	b.queue = nil
	return nil
}

// NewResampleContext implements av.ConvertEngine. Matching formats are
// copied; otherwise the output is silence of the rate-scaled length.
func (e *Engine) NewResampleContext(in, out av.AudioSpec) (av.ResampleContext, error) {
	e.count("NewResampleContext")
	if in.Channels <= 0 || out.Channels <= 0 || in.SampleRate <= 0 || out.SampleRate <= 0 {
		return nil, errors.Wrap(av.ErrInvalidArgument, "avtest: resampler formats")
	}
	return &resampler{engine: e, in: in, out: out}, nil
}

type resampler struct {
	engine  *Engine
	in, out av.AudioSpec
}

func (r *resampler) Convert(in, out *av.Frame) error {
	r.engine.count("Convert")
	n := int(av.Rescale(int64(in.NbSamples), av.R(1, r.in.SampleRate), av.R(1, r.out.SampleRate)))
	if err := out.SetNbSamples(n); err != nil {
		return err
	}
	if r.in == r.out {
		return out.CopyData(in)
	}
	for _, p := range out.Planes {
		clear(p)
	}
	return nil
}

func (r *resampler) Close() error { return nil }

// NewScaleContext implements av.ConvertEngine. Matching geometry is copied;
// otherwise the output is blanked.
func (e *Engine) NewScaleContext(in, out av.VideoSpec) (av.ScaleContext, error) {
	e.count("NewScaleContext")
	if in.Width <= 0 || in.Height <= 0 || out.Width <= 0 || out.Height <= 0 {
		return nil, errors.Wrap(av.ErrInvalidArgument, "avtest: scaler geometry")
	}
	return &scaler{engine: e, same: in == out}, nil
}

type scaler struct {
	engine *Engine
	same   bool
}

func (s *scaler) Scale(in, out *av.Frame) error {
	s.engine.count("Scale")
	if s.same {
		return out.CopyData(in)
	}
	for _, p := range out.Planes {
		clear(p)
	}
	return nil
}

func (s *scaler) Close() error { return nil }
