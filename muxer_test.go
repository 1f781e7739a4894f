package av_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/avtest"
)

func TestOutputMuxerStreamCopy(t *testing.T) {
	eng := avtest.New()
	eng.ContainerTimeBases[av.MediaTypeVideo] = av.R(1, 1000)
	m, err := av.NewOutputMuxer(eng, "copy.webm", "webm")
	require.NoError(t, err)

	in := avtest.VideoStream(3, av.CodecVP8, 16, 8, av.R(1, 90000), av.R(30, 1))
	i, err := m.AddStreamParams(in.Params, in.TimeBase)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, m.NumStreams())

	pkt := avtest.Packet(3, 0, 0)
	assert.Error(t, m.WritePacket(pkt, 0), "header not written")

	require.NoError(t, m.Open())
	assert.Equal(t, av.R(1, 1000), m.StreamTimeBase(0))
	_, err = m.AddStreamParams(in.Params, in.TimeBase)
	assert.Error(t, err, "stream after header")

	pkt = avtest.Packet(3, 9000, 3000)
	pkt.Pos = 512
	require.NoError(t, m.WritePacket(pkt, 0))
	assert.True(t, pkt.IsEmpty())
	assert.Error(t, m.WritePacket(avtest.Packet(3, 0, 0), 1))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	out := eng.Outputs["copy.webm"]
	assert.Equal(t, "webm", out.Format)
	assert.True(t, out.TrailerWritten)
	require.Len(t, out.Packets, 1)
	assert.Equal(t, avtest.WrittenPacket{StreamIndex: 0, PTS: 100, DTS: 100, Duration: 33, Pos: -1, Size: 1}, out.Packets[0])
	assert.Equal(t, 1, eng.Calls("WriteTrailer"))
}

func TestOutputMuxerNoFile(t *testing.T) {
	eng := avtest.New()
	eng.OutputFlags = av.FormatNoFile
	m, err := av.NewOutputMuxer(eng, "null", "null")
	require.NoError(t, err)
	_, err = m.AddStreamParams(av.CodecParameters{MediaType: av.MediaTypeAudio}, av.R(1, 48000))
	require.NoError(t, err)
	require.NoError(t, m.Open())
	assert.Zero(t, eng.Calls("OpenIO"))
	assert.False(t, m.RequiresGlobalHeader())
	require.NoError(t, m.Close())
}

func TestOutputMuxerErrors(t *testing.T) {
	eng := avtest.New()
	eng.Outputs["bad.mkv"] = &avtest.Output{FailHeader: true}
	m, err := av.NewOutputMuxer(eng, "bad.mkv", "")
	require.NoError(t, err)

	_, err = m.AddStreamParams(av.CodecParameters{}, av.Rational{})
	assert.ErrorIs(t, err, av.ErrInvalidArgument)

	err = m.Open()
	require.Error(t, err)
	assert.ErrorIs(t, err, avtest.ErrInjected)
	assert.Contains(t, err.Error(), "error occurred when writing header")

	require.NoError(t, m.Close())
	assert.False(t, eng.Outputs["bad.mkv"].TrailerWritten)
}
