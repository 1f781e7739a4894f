package av_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/avtest"
)

func newTestDecoder(t *testing.T, b avtest.CodecBehavior) (*avtest.Engine, *av.Decoder) {
	t.Helper()
	eng := avtest.New(avtest.VideoCodec("vid", av.CodecH264))
	eng.Behaviors["vid"] = b
	desc, err := eng.FindDecoder(av.CodecH264)
	require.NoError(t, err)
	stream := avtest.VideoStream(0, av.CodecH264, 16, 8, av.R(1, 90000), av.R(25, 1))
	dec, err := av.NewDecoder(eng, desc, stream, stream.FrameRate)
	require.NoError(t, err)
	t.Cleanup(func() { dec.Close() })
	return eng, dec
}

func TestDecoderLatency(t *testing.T) {
	tests := []struct {
		name    string
		packets int
		delay   int
	}{
		{"five packets buffering two", 5, 2},
		{"no latency", 4, 0},
		{"latency longer than input", 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dec := newTestDecoder(t, avtest.CodecBehavior{Delay: tt.delay})
			frame := av.NewFrame()

			fed := 0
			for i := 0; i < tt.packets; i++ {
				res, err := dec.Decode(avtest.Packet(0, int64(i), 1), frame)
				require.NoError(t, err)
				if res == av.ResultSuccess {
					fed++
					assert.Equal(t, av.MediaTypeVideo, frame.MediaType)
				}
			}
			assert.Equal(t, max(tt.packets-tt.delay, 0), fed)

			drained := 0
			for {
				res, err := dec.Decode(av.NewPacket(), frame)
				require.NoError(t, err)
				if res == av.ResultEOF {
					break
				}
				require.Equal(t, av.ResultSuccess, res)
				drained++
			}
			assert.Equal(t, tt.packets-fed, drained)
			assert.Equal(t, av.StateDrained, dec.State())
		})
	}
}

func TestDecoderDrainedMakesNoEngineCalls(t *testing.T) {
	eng, dec := newTestDecoder(t, avtest.CodecBehavior{Delay: 1})
	frame := av.NewFrame()
	_, err := dec.Decode(avtest.Packet(0, 0, 1), frame)
	require.NoError(t, err)
	for {
		res, err := dec.Decode(nil, frame)
		require.NoError(t, err)
		if res == av.ResultEOF {
			break
		}
	}
	eng.ResetCalls()
	for i := 0; i < 3; i++ {
		res, err := dec.Decode(nil, frame)
		require.NoError(t, err)
		assert.Equal(t, av.ResultEOF, res)
	}
	assert.Zero(t, eng.Calls("SendPacket"))
	assert.Zero(t, eng.Calls("ReceiveFrame"))
}

func TestDecoderFlushSentOnce(t *testing.T) {
	eng, dec := newTestDecoder(t, avtest.CodecBehavior{Delay: 2})
	frame := av.NewFrame()
	for i := 0; i < 2; i++ {
		_, err := dec.Decode(avtest.Packet(0, int64(i), 1), frame)
		require.NoError(t, err)
	}
	eng.ResetCalls()
	for i := 0; i < 3; i++ {
		_, err := dec.Decode(nil, frame)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, eng.Calls("SendPacket"))
}

func TestDecoderKeepsRefusedPackets(t *testing.T) {
	_, dec := newTestDecoder(t, avtest.CodecBehavior{SendAgainEvery: 3})
	frame := av.NewFrame()

	var pts []int64
	maxPending := 0
	for i := 0; i < 6; i++ {
		res, err := dec.Decode(avtest.Packet(0, int64(i), 1), frame)
		require.NoError(t, err)
		maxPending = max(maxPending, dec.Pending())
		if res == av.ResultSuccess {
			pts = append(pts, frame.PTS)
		}
	}
	assert.Equal(t, 1, maxPending)
	for {
		res, err := dec.Decode(nil, frame)
		require.NoError(t, err)
		if res == av.ResultEOF {
			break
		}
		if res == av.ResultSuccess {
			pts = append(pts, frame.PTS)
		}
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, pts)
	assert.Zero(t, dec.Pending())
}

func TestDecoderHardErrors(t *testing.T) {
	t.Run("send", func(t *testing.T) {
		_, dec := newTestDecoder(t, avtest.CodecBehavior{FailSendAt: 2})
		frame := av.NewFrame()
		_, err := dec.Decode(avtest.Packet(0, 0, 1), frame)
		require.NoError(t, err)
		res, err := dec.Decode(avtest.Packet(0, 1, 1), frame)
		require.Error(t, err)
		assert.Equal(t, av.ResultFail, res)
		assert.ErrorIs(t, err, avtest.ErrInjected)
		assert.Equal(t, av.StateFailed, dec.State())

		_, err = dec.Decode(avtest.Packet(0, 2, 1), frame)
		assert.Error(t, err)
	})
	t.Run("receive", func(t *testing.T) {
		_, dec := newTestDecoder(t, avtest.CodecBehavior{FailReceiveAt: 1})
		res, err := dec.Decode(avtest.Packet(0, 0, 1), av.NewFrame())
		require.Error(t, err)
		assert.Equal(t, av.ResultFail, res)
	})
}

func TestNewDecoderValidation(t *testing.T) {
	eng := avtest.New(avtest.VideoCodec("vid", av.CodecH264))
	desc, err := eng.FindDecoder(av.CodecH264)
	require.NoError(t, err)
	stream := avtest.VideoStream(0, av.CodecH264, 16, 8, av.R(1, 90000), av.R(25, 1))

	_, err = av.NewDecoder(eng, desc, stream, av.Rational{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Framerate is not set")

	encOnly := desc
	encOnly.Decoder = false
	_, err = av.NewDecoder(eng, encOnly, stream, stream.FrameRate)
	assert.Error(t, err)

	eng.Behaviors["vid"] = avtest.CodecBehavior{FailOpen: true}
	_, err = av.NewDecoder(eng, desc, stream, stream.FrameRate)
	require.Error(t, err)
	assert.ErrorIs(t, err, avtest.ErrInjected)
}
