package av_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
)

func TestPixelFormatPlanes(t *testing.T) {
	tests := []struct {
		format av.PixelFormat
		planes int
		size   int // for 4x2
	}{
		{av.PixelFormatI420, 3, 8 + 2 + 2},
		{av.PixelFormatNV12, 2, 8 + 4},
		{av.PixelFormatYUV444P, 3, 24},
		{av.PixelFormatRGB24, 1, 24},
		{av.PixelFormatRGBA, 1, 32},
		{av.PixelFormatBGRA, 1, 32},
		{av.PixelFormatNone, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			assert.Equal(t, tt.planes, tt.format.PlaneCount())
			assert.Equal(t, tt.size, tt.format.FrameSize(4, 2))
			if tt.planes > 0 {
				assert.Equal(t, tt.format, av.ParsePixelFormat(tt.format.String()))
			}
		})
	}
}

func TestSampleFormat(t *testing.T) {
	assert.Equal(t, 2, av.SampleFormatS16P.BytesPerSample())
	assert.Equal(t, 4, av.SampleFormatF32.BytesPerSample())
	assert.True(t, av.SampleFormatFLTP.Planar())
	assert.False(t, av.SampleFormatS16.Planar())
	assert.Equal(t, av.SampleFormatF32P, av.ParseSampleFormat("fltp"))
	assert.Equal(t, av.SampleFormatNone, av.ParseSampleFormat("u8"))
}

func TestFrameAllocVideo(t *testing.T) {
	f := av.NewFrame()
	require.Error(t, f.AllocBuffer(), "format fields are not set")

	f.MediaType = av.MediaTypeVideo
	f.Width, f.Height, f.PixelFormat = 6, 4, av.PixelFormatI420
	require.NoError(t, f.AllocBuffer())
	require.Len(t, f.Planes, 3)
	assert.Len(t, f.Planes[0], 24)
	assert.Len(t, f.Planes[1], 6)
	assert.Equal(t, []int{6, 3, 3}, f.Linesize)
	assert.True(t, f.IsWritable())
}

func TestFrameAllocAudio(t *testing.T) {
	f := av.NewFrame()
	f.MediaType = av.MediaTypeAudio
	f.Channels, f.SampleFormat, f.NbSamples = 2, av.SampleFormatS16, 100
	require.NoError(t, f.AllocBuffer())
	require.Len(t, f.Planes, 1)
	assert.Len(t, f.Planes[0], 400)
	assert.Equal(t, 100, f.Capacity())

	require.NoError(t, f.SetNbSamples(10))
	assert.Len(t, f.Planes[0], 40)
	assert.Equal(t, 100, f.Capacity())
	assert.Error(t, f.SetNbSamples(101))

	p := av.NewFrame()
	p.MediaType = av.MediaTypeAudio
	p.Channels, p.SampleFormat, p.NbSamples = 3, av.SampleFormatF32P, 8
	require.NoError(t, p.AllocBuffer())
	require.Len(t, p.Planes, 3)
	assert.Len(t, p.Planes[2], 32)
	assert.Equal(t, 8, p.Capacity())
}

func TestFrameRefAndMakeWritable(t *testing.T) {
	f := av.NewFrame()
	f.MediaType = av.MediaTypeVideo
	f.Width, f.Height, f.PixelFormat = 2, 2, av.PixelFormatRGB24
	require.NoError(t, f.AllocBuffer())
	f.Planes[0][0] = 42
	f.PTS = 3

	c := f.Clone()
	assert.False(t, f.IsWritable())
	assert.Equal(t, int64(3), c.PTS)

	require.NoError(t, c.MakeWritable())
	c.Planes[0][0] = 1
	assert.Equal(t, byte(42), f.Planes[0][0])
	assert.True(t, f.IsWritable())

	c.MoveRef(f)
	assert.Equal(t, byte(1), f.Planes[0][0])
	assert.False(t, c.HasData())
	assert.Equal(t, av.MediaTypeUnknown, c.MediaType)
}
