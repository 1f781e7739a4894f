package pureav

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readAll(t *testing.T, d av.DemuxContext) []*av.Packet {
	t.Helper()
	var out []*av.Packet
	for {
		p := av.NewPacket()
		err := d.ReadPacket(p)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, p)
	}
}

func ivfFile(fourcc string, frames ...[]byte) []byte {
	b := make([]byte, 32)
	copy(b, "DKIF")
	binary.LittleEndian.PutUint16(b[6:], 32)
	copy(b[8:], fourcc)
	binary.LittleEndian.PutUint16(b[12:], 64)
	binary.LittleEndian.PutUint16(b[14:], 48)
	binary.LittleEndian.PutUint32(b[16:], 30)
	binary.LittleEndian.PutUint32(b[20:], 1)
	binary.LittleEndian.PutUint32(b[24:], uint32(len(frames)))
	for i, f := range frames {
		h := make([]byte, 12)
		binary.LittleEndian.PutUint32(h, uint32(len(f)))
		binary.LittleEndian.PutUint64(h[4:], uint64(i))
		b = append(b, h...)
		b = append(b, f...)
	}
	return b
}

func TestProbeFormat(t *testing.T) {
	cases := []struct {
		head []byte
		name string
		want string
	}{
		{[]byte("\x1a\x45\xdf\xa3\x9f\x42\x82\x84webm"), "x", formatWebM},
		{[]byte("\x1a\x45\xdf\xa3\x9f\x42\x82\x88matroska"), "x", formatMKV},
		{[]byte("DKIF\x00\x00\x20\x00"), "x", formatIVF},
		{[]byte("OggS\x00\x02"), "x", formatOgg},
		{annexB(testSPS), "x", formatH264},
		{[]byte{1, 2, 3}, "clip.webm", formatWebM},
		{[]byte{1, 2, 3}, "clip.MKV", formatMKV},
		{[]byte{1, 2, 3}, "clip.264", formatH264},
		{[]byte{1, 2, 3}, "clip.mp4", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, probeFormat(c.head, c.name), "%q %s", c.head, c.name)
	}
}

func TestKeyframeDetection(t *testing.T) {
	assert.True(t, isKeyframe(av.CodecVP8, []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}))
	assert.False(t, isKeyframe(av.CodecVP8, []byte{0x11, 0x02, 0x00, 0x9d, 0x01, 0x2a}))
	assert.True(t, isKeyframe(av.CodecVP9, []byte{0x82}))
	assert.False(t, isKeyframe(av.CodecVP9, []byte{0x86}))
	assert.True(t, isKeyframe(av.CodecAV1, []byte{0x12, 0x00, 0x0a, 0x01, 0x00}))
	assert.False(t, isKeyframe(av.CodecAV1, []byte{0x12, 0x00, 0x32, 0x01, 0x00}))
	assert.True(t, isKeyframe(av.CodecOpus, []byte{0xfc}))
}

func TestIVFDemux(t *testing.T) {
	key := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x40, 0x00}
	inter := []byte{0x31, 0x01, 0x00, 0x07}
	path := writeFile(t, "clip.bin", ivfFile("VP80", key, inter, inter))

	d, err := New().OpenInput(path)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.FindStreamInfo())

	require.Len(t, d.Streams(), 1)
	s := d.Streams()[0]
	assert.Equal(t, av.CodecVP8, s.Params.CodecID)
	assert.Equal(t, 64, s.Params.Width)
	assert.Equal(t, 48, s.Params.Height)
	assert.Equal(t, av.R(1, 30), s.TimeBase)
	assert.Equal(t, av.R(30, 1), s.FrameRate)
	assert.Equal(t, int64(3), s.Duration)

	index, _, err := d.FindBestStream(av.MediaTypeVideo)
	assert.ErrorIs(t, err, av.ErrDecoderNotFound)
	assert.Equal(t, 0, index)

	pkts := readAll(t, d)
	require.Len(t, pkts, 3)
	assert.Equal(t, key, pkts[0].Data())
	assert.True(t, pkts[0].IsKeyframe())
	assert.False(t, pkts[1].IsKeyframe())
	for i, p := range pkts {
		// Frame timestamps are ticks of the 1/30 header time base.
		assert.Equal(t, int64(i), p.PTS, "packet %d", i)
		assert.Equal(t, int64(i), p.DTS, "packet %d", i)
	}
}

func TestIVFDemuxUnknownFourCC(t *testing.T) {
	path := writeFile(t, "clip.ivf", ivfFile("XVID", []byte{1}))
	_, err := New().OpenInput(path)
	assert.ErrorIs(t, err, av.ErrUnsupported)
}

func TestH264AccessUnits(t *testing.T) {
	data := annexB(testSPS, testPPS, testIDR, testP)
	data = append(data, annexB(testP)...)
	path := writeFile(t, "clip.bin", data)

	d, err := New(WithRawFrameRate(av.R(30, 1))).OpenInput(path)
	require.NoError(t, err)
	defer d.Close()

	s := d.Streams()[0]
	assert.Equal(t, av.CodecH264, s.Params.CodecID)
	assert.Equal(t, av.R(30, 1), s.FrameRate)
	assert.Equal(t, av.R(1, 30), s.TimeBase)

	pkts := readAll(t, d)
	require.Len(t, pkts, 3)
	assert.Equal(t, annexB(testSPS, testPPS, testIDR), pkts[0].Data())
	assert.True(t, pkts[0].IsKeyframe())
	assert.Equal(t, annexB(testP), pkts[1].Data())
	assert.False(t, pkts[1].IsKeyframe())
	for i, p := range pkts {
		assert.Equal(t, int64(i), p.PTS)
	}
}

func TestOpenInputErrors(t *testing.T) {
	_, err := New().OpenInput(filepath.Join(t.TempDir(), "missing.webm"))
	assert.Error(t, err)

	path := writeFile(t, "clip.mp4", []byte("not a container"))
	_, err = New().OpenInput(path)
	assert.ErrorIs(t, err, av.ErrUnsupported)
}

func TestGuessFrameRate(t *testing.T) {
	assert.Equal(t, av.R(25, 1), guessFrameRate([]int64{0, 40, 80}, av.R(1, 1000)))
	assert.Equal(t, av.R(30000, 1001), guessFrameRate([]int64{0, 3003}, av.R(1, 90000)))
	assert.Equal(t, av.R(25, 1), guessFrameRate([]int64{5}, av.R(1, 1000)))
}

func TestMatroskaCodecIDs(t *testing.T) {
	for name, id := range matroskaCodecs {
		got, ok := matroskaCodecID(id)
		require.True(t, ok)
		assert.Equal(t, name, got)
	}
	_, ok := matroskaCodecID("theora")
	assert.False(t, ok)
}
