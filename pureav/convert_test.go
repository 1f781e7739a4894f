package pureav

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
	"github.com/thesyncim/av/avtest"
)

func videoFrame(t *testing.T, w, h int, p av.PixelFormat) *av.Frame {
	t.Helper()
	f := av.NewFrame()
	f.MediaType = av.MediaTypeVideo
	f.Width, f.Height, f.PixelFormat = w, h, p
	require.NoError(t, f.AllocBuffer())
	return f
}

func audioFrame(t *testing.T, channels, rate, n int, s av.SampleFormat) *av.Frame {
	t.Helper()
	f := av.NewFrame()
	f.MediaType = av.MediaTypeAudio
	f.Channels, f.SampleRate, f.SampleFormat, f.NbSamples = channels, rate, s, n
	require.NoError(t, f.AllocBuffer())
	return f
}

func TestScaleSameSizeCopies(t *testing.T) {
	for _, p := range []av.PixelFormat{av.PixelFormatI420, av.PixelFormatNV12, av.PixelFormatRGB24, av.PixelFormatBGRA} {
		in := videoFrame(t, 8, 4, p)
		for i, plane := range in.Planes {
			for j := range plane {
				plane[j] = byte(i*50 + j)
			}
		}
		in.PTS = 7
		out := videoFrame(t, 8, 4, p)

		ctx, err := New().NewScaleContext(
			av.VideoSpec{Width: 8, Height: 4, PixelFormat: p}, av.VideoSpec{Width: 8, Height: 4, PixelFormat: p})
		require.NoError(t, err)
		require.NoError(t, ctx.Scale(in, out))
		assert.Equal(t, in.Planes, out.Planes, p.String())
		assert.Equal(t, int64(7), out.PTS)
	}
}

func TestScaleConstantPlanes(t *testing.T) {
	in := videoFrame(t, 32, 16, av.PixelFormatI420)
	for i, v := range []byte{200, 90, 30} {
		for j := range in.Planes[i] {
			in.Planes[i][j] = v
		}
	}
	for _, size := range [][2]int{{16, 8}, {64, 32}, {20, 12}} {
		out := videoFrame(t, size[0], size[1], av.PixelFormatI420)
		ctx, err := New().NewScaleContext(
			av.VideoSpec{Width: 32, Height: 16, PixelFormat: av.PixelFormatI420},
			av.VideoSpec{Width: size[0], Height: size[1], PixelFormat: av.PixelFormatI420})
		require.NoError(t, err)
		require.NoError(t, ctx.Scale(in, out))
		for i, v := range []byte{200, 90, 30} {
			for _, b := range out.Planes[i] {
				require.Equal(t, v, b)
			}
		}
	}
}

func TestScaleColorBars(t *testing.T) {
	in := avtest.PatternFrame(avtest.PatternColorBars, 64, 32, 0)
	defer in.Unref()
	out := videoFrame(t, 32, 16, av.PixelFormatI420)
	ctx, err := New().NewScaleContext(
		av.VideoSpec{Width: 64, Height: 32, PixelFormat: av.PixelFormatI420},
		av.VideoSpec{Width: 32, Height: 16, PixelFormat: av.PixelFormatI420})
	require.NoError(t, err)
	require.NoError(t, ctx.Scale(in, out))
	for y := 0; y < 16; y++ {
		row := out.Planes[0][y*out.Linesize[0]:]
		// Bar centres keep the white to black ordering.
		assert.Equal(t, in.Planes[0][4], row[2])
		assert.Equal(t, in.Planes[0][60], row[30])
	}
}

func TestScaleFitLetterboxes(t *testing.T) {
	in := videoFrame(t, 32, 8, av.PixelFormatRGBA)
	for j := range in.Planes[0] {
		in.Planes[0][j] = 0x80
	}
	out := videoFrame(t, 16, 16, av.PixelFormatRGBA)
	ctx, err := New(WithScaleMode(ScaleModeFit)).NewScaleContext(
		av.VideoSpec{Width: 32, Height: 8, PixelFormat: av.PixelFormatRGBA},
		av.VideoSpec{Width: 16, Height: 16, PixelFormat: av.PixelFormatRGBA})
	require.NoError(t, err)
	require.NoError(t, ctx.Scale(in, out))

	// 32x8 fits 16x4, centered at rows 6..9.
	row := func(y int) []byte { return out.Planes[0][y*64 : (y+1)*64] }
	assert.Equal(t, []byte{0, 0, 0, 0xFF}, row(0)[:4])
	assert.Equal(t, []byte{0x80, 0x80, 0x80, 0x80}, row(6)[:4])
	assert.Equal(t, []byte{0, 0, 0, 0xFF}, row(15)[:4])
}

func TestScaleRegions(t *testing.T) {
	src, dst := scaleRegions(1280, 720, 640, 640, ScaleModeFill)
	assert.Equal(t, region{280, 0, 720, 720}, src)
	assert.Equal(t, region{0, 0, 640, 640}, dst)

	src, dst = scaleRegions(1280, 720, 640, 640, ScaleModeFit)
	assert.Equal(t, region{0, 0, 1280, 720}, src)
	assert.Equal(t, region{0, 140, 640, 360}, dst)

	src, dst = scaleRegions(1280, 720, 640, 640, ScaleModeStretch)
	assert.Equal(t, region{0, 0, 1280, 720}, src)
	assert.Equal(t, region{0, 0, 640, 640}, dst)
}

func TestScaleRejectsFormatConversion(t *testing.T) {
	_, err := New().NewScaleContext(
		av.VideoSpec{Width: 8, Height: 8, PixelFormat: av.PixelFormatI420},
		av.VideoSpec{Width: 8, Height: 8, PixelFormat: av.PixelFormatRGBA})
	assert.ErrorIs(t, err, av.ErrUnsupported)

	_, err = New().NewScaleContext(av.VideoSpec{PixelFormat: av.PixelFormatI420}, av.VideoSpec{Width: 8, Height: 8, PixelFormat: av.PixelFormatI420})
	assert.ErrorIs(t, err, av.ErrInvalidArgument)
}

func TestResampleFormatConversion(t *testing.T) {
	in := audioFrame(t, 2, 48000, 4, av.SampleFormatS16)
	values := []int16{0, 16384, -16384, 32767, -32768, 8192, 1, -1}
	for i, v := range values {
		binary.LittleEndian.PutUint16(in.Planes[0][i*2:], uint16(v))
	}
	out := audioFrame(t, 2, 48000, 4, av.SampleFormatF32P)

	ctx, err := New().NewResampleContext(
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatS16, SampleRate: 48000},
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatF32P, SampleRate: 48000})
	require.NoError(t, err)
	require.NoError(t, ctx.Convert(in, out))
	assert.Equal(t, 4, out.NbSamples)

	sample := func(c, i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(out.Planes[c][i*4:]))
	}
	assert.Equal(t, float32(0), sample(0, 0))
	assert.Equal(t, float32(0.5), sample(1, 0))
	assert.Equal(t, float32(-0.5), sample(0, 1))
	assert.Equal(t, float32(-1), sample(0, 2))
	assert.Equal(t, float32(0.25), sample(1, 2))

	// And back: S16 survives the float round trip exactly.
	back := audioFrame(t, 2, 48000, 4, av.SampleFormatS16)
	rev, err := New().NewResampleContext(
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatF32P, SampleRate: 48000},
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatS16, SampleRate: 48000})
	require.NoError(t, err)
	require.NoError(t, rev.Convert(out, back))
	assert.Equal(t, in.Planes[0], back.Planes[0])
}

func TestResampleRateAndChannels(t *testing.T) {
	in := audioFrame(t, 2, 48000, 960, av.SampleFormatF32)
	for i := 0; i < 960; i++ {
		binary.LittleEndian.PutUint32(in.Planes[0][i*8:], math.Float32bits(0.25))
		binary.LittleEndian.PutUint32(in.Planes[0][i*8+4:], math.Float32bits(0.75))
	}
	out := audioFrame(t, 1, 16000, 1024, av.SampleFormatF32)

	ctx, err := New().NewResampleContext(
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatF32, SampleRate: 48000},
		av.AudioSpec{Channels: 1, SampleFormat: av.SampleFormatF32, SampleRate: 16000})
	require.NoError(t, err)
	require.NoError(t, ctx.Convert(in, out))
	require.Equal(t, 320, out.NbSamples)
	for i := 0; i < out.NbSamples; i++ {
		require.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(out.Planes[0][i*4:])))
	}
}

func TestResampleUpmixAndCapacity(t *testing.T) {
	in := audioFrame(t, 1, 8000, 100, av.SampleFormatS16P)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(in.Planes[0][i*2:], uint16(int16(i*10)))
	}
	out := audioFrame(t, 2, 8000, 100, av.SampleFormatS16P)
	ctx, err := New().NewResampleContext(
		av.AudioSpec{Channels: 1, SampleFormat: av.SampleFormatS16P, SampleRate: 8000},
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatS16P, SampleRate: 8000})
	require.NoError(t, err)
	require.NoError(t, ctx.Convert(in, out))
	assert.Equal(t, in.Planes[0], out.Planes[0])
	assert.Equal(t, in.Planes[0], out.Planes[1])

	up, err := New().NewResampleContext(
		av.AudioSpec{Channels: 1, SampleFormat: av.SampleFormatS16P, SampleRate: 8000},
		av.AudioSpec{Channels: 2, SampleFormat: av.SampleFormatS16P, SampleRate: 48000})
	require.NoError(t, err)
	small := audioFrame(t, 2, 48000, 100, av.SampleFormatS16P)
	assert.Error(t, up.Convert(in, small))
}

func TestResampleLinear(t *testing.T) {
	assert.Equal(t, []float32{0, 0.5, 1, 1}, resampleLinear([]float32{0, 1}, 4))
	assert.Equal(t, []float32{0, 2}, resampleLinear([]float32{0, 1, 2, 3}, 2))
	s := []float32{1, 2}
	assert.Equal(t, s, resampleLinear(s, 2))
}
