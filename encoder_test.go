package av_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/avtest"
)

func newTestVideoEncoder(t *testing.T, b avtest.CodecBehavior) (*avtest.Engine, *av.Encoder) {
	t.Helper()
	eng := avtest.New(avtest.VideoCodec("vid", av.CodecH264))
	eng.Behaviors["vid"] = b
	enc, err := av.NewEncoder(eng, av.CodecH264, false)
	require.NoError(t, err)
	require.NoError(t, enc.SetVideoParams(16, 8, av.R(25, 1), av.Options{"crf": 29, "preset": "fast"}))
	require.NoError(t, enc.Open())
	t.Cleanup(func() { enc.Close() })
	return eng, enc
}

func TestEncoderDrainGrowsArenaOnlyWithOutput(t *testing.T) {
	// Lookahead of one frame at two packets per frame: nothing on the
	// first call, two packets on the second.
	_, enc := newTestVideoEncoder(t, avtest.CodecBehavior{Delay: 1, PacketsPerFrame: 2})
	frame, err := enc.NewWritableVideoFrame()
	require.NoError(t, err)
	out := av.NewPackets(0)

	n, res, err := enc.EncodeFrame(frame, out)
	require.NoError(t, err)
	assert.Equal(t, av.ResultSuccess, res)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, out.Len())

	frame.PTS = 1
	n, res, err = enc.EncodeFrame(frame, out)
	require.NoError(t, err)
	assert.Equal(t, av.ResultSuccess, res)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, int64(0), out.At(0).PTS)
	assert.Equal(t, int64(0), out.At(1).PTS)

	slot := out.At(0)
	frame.PTS = 2
	n, _, err = enc.EncodeFrame(frame, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Same(t, slot, out.At(0), "slots are reused")
	assert.Equal(t, int64(1), out.At(0).PTS)
}

func TestEncoderFlushOnce(t *testing.T) {
	eng, enc := newTestVideoEncoder(t, avtest.CodecBehavior{Delay: 2})
	frame, err := enc.NewWritableVideoFrame()
	require.NoError(t, err)
	out := av.NewPackets(0)
	for i := 0; i < 3; i++ {
		frame.PTS = int64(i)
		_, _, err := enc.EncodeFrame(frame, out)
		require.NoError(t, err)
	}

	n, res, err := enc.Flush(out)
	require.NoError(t, err)
	assert.Equal(t, av.ResultEOF, res)
	assert.Equal(t, 2, n)
	assert.True(t, enc.Flushed())
	assert.Equal(t, av.StateDrained, enc.State())

	eng.ResetCalls()
	n, res, err = enc.Flush(out)
	require.NoError(t, err)
	assert.Equal(t, av.ResultEOF, res)
	assert.Zero(t, n)
	assert.Zero(t, eng.Calls("SendFrame"))
	assert.Zero(t, eng.Calls("ReceivePacket"))

	_, res, err = enc.EncodeFrame(frame, out)
	assert.Error(t, err, "encoding after flush")
	assert.Equal(t, av.ResultFail, res)
}

func TestEncoderFailureKeepsFilledSlots(t *testing.T) {
	_, enc := newTestVideoEncoder(t, avtest.CodecBehavior{PacketsPerFrame: 3, FailReceiveAt: 3})
	frame, err := enc.NewWritableVideoFrame()
	require.NoError(t, err)
	out := av.NewPackets(0)

	n, res, err := enc.EncodeFrame(frame, out)
	require.Error(t, err)
	assert.Equal(t, av.ResultFail, res)
	assert.Equal(t, 2, n)
	assert.False(t, out.At(0).IsEmpty())
	assert.False(t, out.At(1).IsEmpty())
	assert.Equal(t, av.StateFailed, enc.State())
}

func TestEncoderSendFailure(t *testing.T) {
	_, enc := newTestVideoEncoder(t, avtest.CodecBehavior{FailSendAt: 1})
	frame, err := enc.NewWritableVideoFrame()
	require.NoError(t, err)
	n, res, err := enc.EncodeFrame(frame, av.NewPackets(0))
	require.Error(t, err)
	assert.Equal(t, av.ResultFail, res)
	assert.Zero(t, n)
}

func TestEncoderVideoParams(t *testing.T) {
	eng, enc := newTestVideoEncoder(t, avtest.CodecBehavior{})
	par := enc.Parameters()
	assert.Equal(t, av.R(1, 25), enc.TimeBase())
	assert.Equal(t, 16, par.Width)
	assert.Equal(t, av.PixelFormatI420, par.PixelFormat)
	assert.Equal(t, -1, par.GopSize, "h264 leaves GOP to the codec")
	assert.Zero(t, par.BitRate)
	opts := eng.Options("vid")
	assert.Equal(t, 29, opts["crf"])
	assert.Equal(t, "fast", opts["preset"])
	assert.Equal(t, -1, opts["qmin"])

	frame, err := enc.NewWritableVideoFrame()
	require.NoError(t, err)
	assert.Equal(t, int64(0), frame.PTS)
	assert.Equal(t, 16, frame.Width)
	assert.True(t, frame.HasData())

	assert.Error(t, enc.SetVideoParams(32, 32, av.R(30, 1), nil), "already open")
}

func TestEncoderGenericDefaults(t *testing.T) {
	tests := []struct {
		name     string
		desc     av.CodecDescriptor
		channels int
		rate     int
		format   av.SampleFormat
	}{
		{
			name:     "unrestricted",
			desc:     av.CodecDescriptor{Name: "a", ID: av.CodecAAC, MediaType: av.MediaTypeAudio, Encoder: true},
			channels: 2, rate: 44100, format: av.SampleFormatFLTP,
		},
		{
			name: "restricted",
			desc: av.CodecDescriptor{Name: "b", ID: av.CodecOpus, MediaType: av.MediaTypeAudio, Encoder: true,
				SampleFormats: []av.SampleFormat{av.SampleFormatS16}, SampleRates: []int{48000, 24000}, ChannelCounts: []int{1}},
			channels: 1, rate: 48000, format: av.SampleFormatS16,
		},
		{
			name: "preferred available",
			desc: av.CodecDescriptor{Name: "c", ID: av.CodecMP3, MediaType: av.MediaTypeAudio, Encoder: true,
				SampleRates: []int{48000, 44100}, ChannelCounts: []int{1, 2}},
			channels: 2, rate: 44100, format: av.SampleFormatFLTP,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := avtest.New(tt.desc)
			enc, err := av.NewEncoderByName(eng, tt.desc.Name)
			require.NoError(t, err)
			par := enc.Parameters()
			assert.Equal(t, tt.channels, par.Channels)
			assert.Equal(t, tt.rate, par.SampleRate)
			assert.Equal(t, tt.format, par.SampleFormat)
			assert.Equal(t, int64(64000), par.BitRate)
		})
	}
}

func TestEncoderMPEG2Defaults(t *testing.T) {
	eng := avtest.New(av.CodecDescriptor{Name: "mpeg2", ID: av.CodecMPEG2Video, MediaType: av.MediaTypeVideo, Encoder: true})
	enc, err := av.NewEncoder(eng, av.CodecMPEG2Video, false)
	require.NoError(t, err)
	par := enc.Parameters()
	assert.Equal(t, 12, par.GopSize)
	assert.Equal(t, 2, par.MaxBFrames)
	assert.Equal(t, av.PixelFormatYUV420P, par.PixelFormat)
}

func TestEncoderSkipsHardware(t *testing.T) {
	hw := avtest.VideoCodec("vid_hw", av.CodecH264)
	hw.Hardware = true
	sw := avtest.VideoCodec("vid_sw", av.CodecH264)
	eng := avtest.New(hw, sw)

	enc, err := av.NewEncoder(eng, av.CodecH264, false)
	require.NoError(t, err)
	assert.Equal(t, "vid_sw", enc.Descriptor().Name)

	enc, err = av.NewEncoder(eng, av.CodecH264, true)
	require.NoError(t, err)
	assert.Equal(t, "vid_hw", enc.Descriptor().Name)

	_, err = av.NewEncoder(eng, av.CodecVP9, true)
	assert.ErrorIs(t, err, av.ErrEncoderNotFound)
}

func TestEncoderAudioFrame(t *testing.T) {
	eng := avtest.New(avtest.AudioCodec("aud", av.CodecAAC))
	enc, err := av.NewEncoder(eng, av.CodecAAC, false)
	require.NoError(t, err)
	require.NoError(t, enc.SetAudioParams(2, 48000, 128000, nil))
	require.NoError(t, enc.Open())
	assert.Equal(t, av.R(1, 48000), enc.TimeBase())
	assert.True(t, eng.Params("aud").StrictExperimental)

	frame, err := enc.NewWritableAudioFrame(0)
	require.NoError(t, err)
	assert.Equal(t, 1024, frame.Capacity(), "encoder frame size")
	assert.Equal(t, av.SampleFormatF32P, frame.SampleFormat)
	assert.Len(t, frame.Planes, 2)
}

func TestOptionsRejectUnsupportedType(t *testing.T) {
	eng := avtest.New(avtest.VideoCodec("vid", av.CodecH264))
	enc, err := av.NewEncoder(eng, av.CodecH264, false)
	require.NoError(t, err)
	err = enc.SetVideoParams(16, 8, av.R(25, 1), av.Options{"bad": []int{1}})
	assert.Error(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, av.Options{"c": 1, "a": "x", "b": 1.5}.Keys())
}
