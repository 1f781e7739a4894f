package av_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/avtest"
)

func newWriterEngine() *avtest.Engine {
	eng := avtest.New(avtest.VideoCodec("vid", av.CodecH264), avtest.AudioCodec("aud", av.CodecAAC))
	eng.ContainerTimeBases[av.MediaTypeVideo] = av.R(1, 90000)
	eng.ContainerTimeBases[av.MediaTypeAudio] = av.R(1, 1000)
	return eng
}

func openTestWriter(t *testing.T, eng *avtest.Engine) *av.StreamWriter {
	t.Helper()
	w, err := av.NewStreamWriter(eng, "out.mp4")
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	vi, err := w.AddVideoStream(av.DefaultVideoStreamConfig(16, 8, av.PixelFormatI420, av.R(25, 1)))
	require.NoError(t, err)
	assert.Equal(t, 0, vi)
	ai, err := w.AddAudioStream(av.DefaultAudioStreamConfig(2, 48000, av.SampleFormatF32P))
	require.NoError(t, err)
	assert.Equal(t, 1, ai)
	require.NoError(t, w.Open())
	return w
}

func TestStreamWriterRescalesPerStream(t *testing.T) {
	eng := newWriterEngine()
	eng.Behaviors["vid"] = avtest.CodecBehavior{Delay: 2}
	w := openTestWriter(t, eng)
	assert.Equal(t, 2, w.NumStreams())

	for i := 0; i < 4; i++ {
		require.NoError(t, w.Write(avtest.VideoFrame(16, 8, 1000+int64(i)), 0))
		require.NoError(t, w.Write(avtest.AudioFrame(2, 48000, 1024, 0), 1))
	}
	require.NoError(t, w.Close())

	out := eng.Outputs["out.mp4"]
	require.NotNil(t, out)
	assert.True(t, out.HeaderWritten)
	assert.True(t, out.TrailerWritten)
	assert.True(t, out.Closed)
	require.Len(t, out.Streams, 2)
	assert.Equal(t, av.R(1, 90000), out.Streams[0].TimeBase)
	assert.Equal(t, av.R(1, 1000), out.Streams[1].TimeBase)

	var video, audio []int64
	for _, p := range out.PacketsFor(0) {
		video = append(video, p.PTS)
		assert.Equal(t, int64(3600), p.Duration)
		assert.Equal(t, int64(-1), p.Pos)
	}
	for _, p := range out.PacketsFor(1) {
		audio = append(audio, p.PTS)
	}
	// Input timestamps are ignored: the writer stamps frames itself.
	assert.Equal(t, []int64{0, 3600, 7200, 10800}, video)
	assert.Equal(t, []int64{0, 21, 43, 64}, audio)
	assert.True(t, out.PacketsFor(0)[0].Key)
}

func TestStreamWriterTimestampsNonDecreasing(t *testing.T) {
	eng := newWriterEngine()
	eng.Behaviors["aud"] = avtest.CodecBehavior{Delay: 1}
	w := openTestWriter(t, eng)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Write(avtest.AudioFrame(2, 48000, 1024, 0), 1))
	}
	w.FlushAllStreams()

	packets := eng.Outputs["out.mp4"].PacketsFor(1)
	require.Len(t, packets, 10)
	for i := 1; i < len(packets); i++ {
		assert.GreaterOrEqual(t, packets[i].PTS, packets[i-1].PTS)
		assert.GreaterOrEqual(t, packets[i].DTS, packets[i-1].DTS)
	}
}

func TestStreamWriterFlushStreamOnce(t *testing.T) {
	eng := newWriterEngine()
	w := openTestWriter(t, eng)
	require.NoError(t, w.Write(avtest.VideoFrame(16, 8, 0), 0))

	w.FlushStream(0)
	assert.True(t, w.Encoder(0).Flushed())
	eng.ResetCalls()
	w.FlushStream(0)
	w.FlushStream(7)
	assert.Zero(t, eng.Calls("SendFrame"))
	assert.Zero(t, eng.Calls("ReceivePacket"))

	err := w.Write(avtest.VideoFrame(16, 8, 1), 0)
	assert.Error(t, err, "write after flush")
}

func TestStreamWriterSkipsRejectedPackets(t *testing.T) {
	eng := newWriterEngine()
	eng.Outputs["out.mp4"] = &avtest.Output{FailWrites: map[int]bool{1: true}}
	metrics := av.NewMetrics(nil)
	w, err := av.NewStreamWriter(eng, "out.mp4", av.WithMetrics(metrics))
	require.NoError(t, err)
	defer w.Close()
	_, err = w.AddVideoStream(av.DefaultVideoStreamConfig(16, 8, av.PixelFormatI420, av.R(25, 1)))
	require.NoError(t, err)
	require.NoError(t, w.Open())

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(avtest.VideoFrame(16, 8, 0), 0))
	}
	var pts []int64
	for _, p := range eng.Outputs["out.mp4"].Packets {
		pts = append(pts, p.PTS)
	}
	assert.Equal(t, []int64{0, 7200}, pts)
}

func TestStreamWriterEncodeFailure(t *testing.T) {
	eng := newWriterEngine()
	eng.Behaviors["vid"] = avtest.CodecBehavior{PacketsPerFrame: 2, FailReceiveAt: 2}
	w := openTestWriter(t, eng)

	err := w.Write(avtest.VideoFrame(16, 8, 0), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, avtest.ErrInjected)
	assert.Len(t, eng.Outputs["out.mp4"].PacketsFor(0), 1, "packets produced before the failure are written")
}

func TestStreamWriterRejectsBadInput(t *testing.T) {
	eng := newWriterEngine()
	w, err := av.NewStreamWriter(eng, "out.mp4")
	require.NoError(t, err)
	defer w.Close()
	_, err = w.AddVideoStream(av.DefaultVideoStreamConfig(16, 8, av.PixelFormatI420, av.R(25, 1)))
	require.NoError(t, err)

	assert.Error(t, w.Write(avtest.VideoFrame(16, 8, 0), 0), "not open")
	require.NoError(t, w.Open())
	assert.Error(t, w.Write(avtest.VideoFrame(16, 8, 0), 3), "unknown stream")
	assert.Error(t, w.Write(avtest.VideoFrame(8, 8, 0), 0), "geometry mismatch")

	_, err = w.AddAudioStream(av.DefaultAudioStreamConfig(2, 48000, av.SampleFormatF32P))
	assert.Error(t, err, "stream added after open")
}

func TestStreamWriterCloseIdempotent(t *testing.T) {
	eng := newWriterEngine()
	w := openTestWriter(t, eng)
	require.NoError(t, w.Write(avtest.VideoFrame(16, 8, 0), 0))
	require.NoError(t, w.Close())
	eng.ResetCalls()
	require.NoError(t, w.Close())
	assert.Zero(t, eng.Calls("WriteTrailer"))
	assert.Zero(t, eng.Calls("CloseCodec"))
}

func TestStreamWriterCloseWithoutOpen(t *testing.T) {
	eng := newWriterEngine()
	w, err := av.NewStreamWriter(eng, "out.mp4")
	require.NoError(t, err)
	_, err = w.AddVideoStream(av.DefaultVideoStreamConfig(16, 8, av.PixelFormatI420, av.R(25, 1)))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Zero(t, eng.Calls("SendFrame"))
	assert.False(t, eng.Outputs["out.mp4"].TrailerWritten)
}

func TestStreamWriterGlobalHeader(t *testing.T) {
	eng := newWriterEngine()
	eng.OutputFlags = av.FormatGlobalHeader
	openTestWriter(t, eng)
	assert.True(t, eng.Params("vid").GlobalHeader)
	assert.True(t, eng.Params("aud").GlobalHeader)
}

// skewedEngine hands out muxers that number streams from one.
type skewedEngine struct{ *avtest.Engine }

func (e skewedEngine) NewOutput(filename, formatName string) (av.MuxContext, error) {
	ctx, err := e.Engine.NewOutput(filename, formatName)
	return skewedMux{ctx}, err
}

type skewedMux struct{ av.MuxContext }

func (m skewedMux) NewStream(par av.CodecParameters, tb av.Rational) (int, error) {
	i, err := m.MuxContext.NewStream(par, tb)
	return i + 1, err
}

func TestStreamWriterRejectsMuxerIndexMismatch(t *testing.T) {
	eng := newWriterEngine()
	w, err := av.NewStreamWriter(skewedEngine{eng}, "out.mp4")
	require.NoError(t, err)

	_, err = w.AddVideoStream(av.DefaultVideoStreamConfig(16, 8, av.PixelFormatI420, av.R(25, 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "muxer assigned stream index 1, expected 0")
	assert.Equal(t, 0, w.NumStreams())
	assert.Equal(t, 1, eng.Calls("CloseCodec"))

	require.NoError(t, w.Close())
	assert.True(t, eng.Outputs["out.mp4"].Closed)
	assert.False(t, eng.Outputs["out.mp4"].HeaderWritten)
}
