package avtest

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/av"
)

func TestPatternFrame(t *testing.T) {
	for _, p := range []Pattern{PatternColorBars, PatternGradient, PatternCheckerboard, PatternMovingBox} {
		t.Run(p.String(), func(t *testing.T) {
			f := PatternFrame(p, 64, 32, 7)
			defer f.Unref()
			assert.Equal(t, av.PixelFormatI420, f.PixelFormat)
			assert.Equal(t, int64(7), f.PTS)
			for _, y := range f.Planes[0][:64*32] {
				require.GreaterOrEqual(t, y, uint8(16))
				require.LessOrEqual(t, y, uint8(235))
			}
		})
	}
}

func TestPatternContent(t *testing.T) {
	bars := PatternFrame(PatternColorBars, 64, 2, 0)
	defer bars.Unref()
	// White bar is brighter than the black one.
	assert.Greater(t, bars.Planes[0][0], bars.Planes[0][63])

	grad := PatternFrame(PatternGradient, 64, 2, 0)
	defer grad.Unref()
	assert.Less(t, grad.Planes[0][0], grad.Planes[0][63])

	a := PatternFrame(PatternMovingBox, 64, 64, 0)
	b := PatternFrame(PatternMovingBox, 64, 64, 30)
	defer a.Unref()
	defer b.Unref()
	assert.NotEqual(t, a.Planes[0][:64*64], b.Planes[0][:64*64])
}

func TestToneFrame(t *testing.T) {
	f := ToneFrame(1000, 2, 8000, 8, 0)
	defer f.Unref()
	sample := func(c, i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(f.Planes[c][i*4:])))
	}
	assert.InDelta(t, 0, sample(0, 0), 1e-6)
	assert.InDelta(t, 0.5, sample(0, 2), 1e-6)
	assert.InDelta(t, sample(0, 2), sample(1, 2), 0)

	next := ToneFrame(1000, 1, 8000, 1, 2)
	defer next.Unref()
	assert.Equal(t, f.Planes[0][8:12], next.Planes[0][:4])
	assert.Equal(t, int64(2), next.PTS)
}
