package avtest

import (
	"encoding/binary"
	"math"

	"github.com/thesyncim/av"
)

// Pattern selects the picture drawn by PatternFrame.
type Pattern int

const (
	PatternColorBars    Pattern = iota // 8 vertical bars
	PatternGradient                    // horizontal luma ramp, black to white
	PatternCheckerboard                // 16 pixel squares
	PatternMovingBox                   // box circling the centre, one step per frame
)

func (p Pattern) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

var colorBarsRGB = [8][3]uint8{
	{192, 192, 192},
	{192, 192, 0},
	{0, 192, 192},
	{0, 192, 0},
	{192, 0, 192},
	{192, 0, 0},
	{0, 0, 192},
	{16, 16, 16},
}

const checkerSize = 16

// PatternFrame returns an I420 frame of the given size showing p. n is
// used as the frame's PTS and as the animation step.
func PatternFrame(p Pattern, width, height int, n int64) *av.Frame {
	f := VideoFrame(width, height, n)
	draw := func(x, y int, yv, u, v uint8) {
		f.Planes[0][y*f.Linesize[0]+x] = yv
		if x%2 == 0 && y%2 == 0 {
			f.Planes[1][(y/2)*f.Linesize[1]+x/2] = u
			f.Planes[2][(y/2)*f.Linesize[2]+x/2] = v
		}
	}

	switch p {
	case PatternColorBars:
		bar := max(width/8, 1)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				rgb := colorBarsRGB[min(x/bar, 7)]
				yv, u, v := rgbToYUV(rgb[0], rgb[1], rgb[2])
				draw(x, y, yv, u, v)
			}
		}
	case PatternGradient:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				draw(x, y, uint8(16+x*219/width), 128, 128)
			}
		}
	case PatternCheckerboard:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				yv := uint8(16)
				if (x/checkerSize+y/checkerSize)%2 == 0 {
					yv = 235
				}
				draw(x, y, yv, 128, 128)
			}
		}
	case PatternMovingBox:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				draw(x, y, 16, 128, 128)
			}
		}
		box := max(min(width, height)/4, 1)
		radius := float64(min(width, height)) / 4
		angle := float64(n) * 0.05
		bx := width/2 + int(radius*math.Cos(angle)) - box/2
		by := height/2 + int(radius*math.Sin(angle)) - box/2
		for y := max(by, 0); y < by+box && y < height; y++ {
			for x := max(bx, 0); x < bx+box && x < width; x++ {
				draw(x, y, 235, 128, 128)
			}
		}
	}
	return f
}

// ToneFrame returns a planar float frame of n samples holding a sine wave
// of freq Hz at half scale. start is the index of the first sample in the
// stream and is used as the PTS, so consecutive calls continue the wave.
func ToneFrame(freq float64, channels, sampleRate, n int, start int64) *av.Frame {
	f := AudioFrame(channels, sampleRate, n, start)
	for i := 0; i < n; i++ {
		s := float32(0.5 * math.Sin(2*math.Pi*freq*float64(start+int64(i))/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint32(f.Planes[c][i*4:], math.Float32bits(s))
		}
	}
	return f
}

// rgbToYUV converts studio range BT.601.
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	yf := 16 + 65.481*rf + 128.553*gf + 24.966*bf
	uf := 128 - 37.797*rf - 74.203*gf + 112.0*bf
	vf := 128 + 112.0*rf - 93.786*gf - 18.214*bf
	return uint8(clamp(yf, 16, 235)), uint8(clamp(uf, 16, 240)), uint8(clamp(vf, 16, 240))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
