package pureav_test

import (
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/pureav"
)

const (
	testWidth   = 16
	testHeight  = 8
	testSamples = 1024
)

func patternFrame(t *testing.T, n int) *av.Frame {
	t.Helper()
	f := av.NewFrame()
	f.MediaType = av.MediaTypeVideo
	f.Width, f.Height, f.PixelFormat = testWidth, testHeight, av.PixelFormatI420
	require.NoError(t, f.AllocBuffer())
	for p, plane := range f.Planes {
		for i := range plane {
			plane[i] = byte(n*7 + p*31 + i)
		}
	}
	return f
}

func toneFrame(t *testing.T, n int) *av.Frame {
	t.Helper()
	f := av.NewFrame()
	f.MediaType = av.MediaTypeAudio
	f.Channels, f.SampleRate, f.SampleFormat = 2, 48000, av.SampleFormatS16
	f.NbSamples = testSamples
	require.NoError(t, f.AllocBuffer())
	for i := 0; i < testSamples*2; i++ {
		binary.LittleEndian.PutUint16(f.Planes[0][i*2:], uint16(int16(n*100+i-1000)))
	}
	return f
}

func writeRawFile(t *testing.T, eng *pureav.Engine, path string, frames int) {
	t.Helper()
	w, err := av.NewStreamWriter(eng, path)
	require.NoError(t, err)
	vi, err := w.AddVideoStream(av.VideoStreamConfig{
		Codec:            av.CodecRawVideo,
		InputWidth:       testWidth,
		InputHeight:      testHeight,
		InputPixelFormat: av.PixelFormatI420,
		FrameRate:        av.R(25, 1),
	})
	require.NoError(t, err)
	ai, err := w.AddAudioStream(av.AudioStreamConfig{
		Codec:             av.CodecPCMS16LE,
		InputChannels:     2,
		InputSampleRate:   48000,
		InputSampleFormat: av.SampleFormatS16,
	})
	require.NoError(t, err)
	require.NoError(t, w.Open())

	for i := 0; i < frames; i++ {
		vf := patternFrame(t, i)
		require.NoError(t, w.Write(vf, vi))
		vf.Unref()
		af := toneFrame(t, i)
		require.NoError(t, w.Write(af, ai))
		af.Unref()
	}
	require.NoError(t, w.Close())
}

func TestMatroskaRoundTrip(t *testing.T) {
	eng := pureav.New()
	path := filepath.Join(t.TempDir(), "raw.mkv")
	writeRawFile(t, eng, path, 10)

	r, err := av.NewStreamReader(eng, path, true)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, testWidth, r.FrameWidth())
	assert.Equal(t, testHeight, r.FrameHeight())
	assert.Equal(t, av.PixelFormatI420, r.PixelFormat())
	assert.Equal(t, av.R(25, 1), r.FrameRate())
	assert.Equal(t, av.R(1, 1000), r.VideoTimeBase())
	assert.Equal(t, 2, r.Channels())
	assert.Equal(t, 48000, r.SampleRate())
	assert.Equal(t, av.SampleFormatS16, r.SampleFormat())

	var videoPTS []int64
	video, audio := 0, 0
	frame := av.NewFrame()
	for {
		ok, err := r.ReadFrame(frame)
		require.NoError(t, err)
		if !ok {
			break
		}
		switch frame.MediaType {
		case av.MediaTypeVideo:
			want := patternFrame(t, video)
			for p := range want.Planes {
				assert.Equal(t, want.Planes[p], frame.Planes[p], "frame %d plane %d", video, p)
			}
			want.Unref()
			videoPTS = append(videoPTS, frame.PTS)
			video++
		case av.MediaTypeAudio:
			want := toneFrame(t, audio)
			assert.Equal(t, testSamples, frame.NbSamples)
			assert.Equal(t, want.Planes[0], frame.Planes[0], "audio frame %d", audio)
			want.Unref()
			audio++
		}
		frame.Unref()
	}
	assert.Equal(t, 10, video)
	assert.Equal(t, 10, audio)
	assert.Equal(t, []int64{0, 40, 80, 120, 160, 200, 240, 280, 320, 360}, videoPTS)
}

func TestStreamCopyThroughNullMuxer(t *testing.T) {
	eng := pureav.New()
	path := filepath.Join(t.TempDir(), "raw.mkv")
	writeRawFile(t, eng, path, 4)

	in, err := av.OpenInput(eng, path, true, av.WithoutDecoders())
	require.NoError(t, err)
	defer in.Close()

	m, err := av.NewOutputMuxer(eng, "discard", "null")
	require.NoError(t, err)
	for _, s := range in.Streams() {
		_, err := m.AddStreamParams(s.Params, s.TimeBase)
		require.NoError(t, err)
	}
	require.NoError(t, m.Open())

	pkt := av.NewPacket()
	n := 0
	for {
		ok, err := in.ReadPacket(pkt)
		require.NoError(t, err)
		if !ok {
			break
		}
		require.NoError(t, m.WritePacket(pkt, pkt.StreamIndex))
		n++
	}
	assert.Equal(t, 8, n)
	require.NoError(t, m.Close())
}

func TestOutputFormatGuess(t *testing.T) {
	eng := pureav.New()
	for name, format := range map[string]string{
		"a.webm": "webm",
		"a.mkv":  "matroska",
		"a.opus": "ogg",
	} {
		m, err := eng.NewOutput(name, "")
		require.NoError(t, err, name)
		assert.Equal(t, format, m.FormatName(), name)
	}
	_, err := eng.NewOutput("a.mp4", "")
	assert.ErrorIs(t, err, av.ErrUnsupported)

	m, err := eng.NewOutput("a.webm", "")
	require.NoError(t, err)
	assert.Equal(t, av.FormatGlobalHeader, m.Flags())
	_, err = m.NewStream(av.CodecParameters{MediaType: av.MediaTypeVideo, CodecID: "theora"}, av.R(1, 25))
	assert.ErrorIs(t, err, av.ErrUnsupported)
}

func TestOggOpusRoundTrip(t *testing.T) {
	eng := pureav.New()
	path := filepath.Join(t.TempDir(), "a.ogg")
	m, err := av.NewOutputMuxer(eng, path, "")
	require.NoError(t, err)
	_, err = m.AddStreamParams(av.CodecParameters{
		MediaType: av.MediaTypeAudio, CodecID: av.CodecOpus, Channels: 2, SampleRate: 48000,
	}, av.R(1, 48000))
	require.NoError(t, err)
	require.NoError(t, m.Open())
	assert.Equal(t, av.R(1, 48000), m.StreamTimeBase(0))

	payloads := [][]byte{{0xfc, 1, 2}, {0xfc, 3, 4, 5}, {0xfc, 6}}
	for i, p := range payloads {
		pkt := av.NewPacketFromData(p)
		pkt.PTS = int64(i) * 960
		pkt.DTS = pkt.PTS
		pkt.Duration = 960
		require.NoError(t, m.WritePacket(pkt, 0))
	}
	require.NoError(t, m.Close())

	in, err := eng.OpenInput(path)
	require.NoError(t, err)
	defer in.Close()
	require.NoError(t, in.FindStreamInfo())
	require.Len(t, in.Streams(), 1)
	s := in.Streams()[0]
	assert.Equal(t, av.CodecOpus, s.Params.CodecID)
	assert.Equal(t, 2, s.Params.Channels)
	assert.Equal(t, av.R(1, 48000), s.TimeBase)

	_, _, err = in.FindBestStream(av.MediaTypeVideo)
	assert.ErrorIs(t, err, av.ErrStreamNotFound)
	index, _, err := in.FindBestStream(av.MediaTypeAudio)
	assert.ErrorIs(t, err, av.ErrDecoderNotFound)
	assert.Equal(t, 0, index)

	var got [][]byte
	last := int64(-1)
	for {
		pkt := av.NewPacket()
		err := in.ReadPacket(pkt)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, append([]byte(nil), pkt.Data()...))
		assert.Greater(t, pkt.PTS, last)
		last = pkt.PTS
		pkt.Unref()
	}
	assert.Equal(t, payloads, got)
}

func TestMatroskaVideoOnlyKeepsPayloads(t *testing.T) {
	eng := pureav.New()
	path := filepath.Join(t.TempDir(), "video.mkv")
	w, err := av.NewStreamWriter(eng, path)
	require.NoError(t, err)
	vi, err := w.AddVideoStream(av.VideoStreamConfig{
		Codec:            av.CodecRawVideo,
		InputWidth:       testWidth,
		InputHeight:      testHeight,
		InputPixelFormat: av.PixelFormatI420,
		FrameRate:        av.R(25, 1),
	})
	require.NoError(t, err)
	require.NoError(t, w.Open())
	for i := 0; i < 6; i++ {
		vf := patternFrame(t, i)
		require.NoError(t, w.Write(vf, vi))
		vf.Unref()
	}
	require.NoError(t, w.Close())

	r, err := av.NewStreamReader(eng, path, false)
	require.NoError(t, err)
	defer r.Close()
	var first []byte
	frame := av.NewFrame()
	for {
		ok, err := r.ReadFrame(frame)
		require.NoError(t, err)
		if !ok {
			break
		}
		first = append(first, frame.Planes[0][0])
		frame.Unref()
	}
	assert.Equal(t, []byte{0, 7, 14, 21, 28, 35}, first)
}

func TestMatroskaUpsampledAudioBlock(t *testing.T) {
	eng := pureav.New()
	path := filepath.Join(t.TempDir(), "audio.mkv")
	w, err := av.NewStreamWriter(eng, path)
	require.NoError(t, err)
	_, err = w.AddVideoStream(av.VideoStreamConfig{
		Codec:            av.CodecRawVideo,
		InputWidth:       testWidth,
		InputHeight:      testHeight,
		InputPixelFormat: av.PixelFormatI420,
		FrameRate:        av.R(25, 1),
	})
	require.NoError(t, err)
	ai, err := w.AddAudioStream(av.AudioStreamConfig{
		Codec:             av.CodecPCMS16LE,
		InputChannels:     1,
		InputSampleRate:   44100,
		InputSampleFormat: av.SampleFormatS16,
		SampleRate:        48000,
	})
	require.NoError(t, err)
	require.NoError(t, w.Open())

	f := av.NewFrame()
	f.MediaType = av.MediaTypeAudio
	f.Channels, f.SampleRate, f.SampleFormat, f.NbSamples = 1, 44100, av.SampleFormatS16, av.DefaultAudioFrameCapacity
	require.NoError(t, f.AllocBuffer())
	require.NoError(t, w.Write(f, ai))
	f.Unref()
	require.NoError(t, w.Close())

	r, err := av.NewStreamReader(eng, path, true)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 48000, r.SampleRate())
	samples := 0
	frame := av.NewFrame()
	for {
		ok, err := r.ReadFrame(frame)
		require.NoError(t, err)
		if !ok {
			break
		}
		if frame.MediaType == av.MediaTypeAudio {
			samples += frame.NbSamples
		}
		frame.Unref()
	}
	assert.InDelta(t, 8917, samples, 1)
}
