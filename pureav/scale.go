package pureav

import (
	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// ScaleMode defines how scaling handles aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeStretch scales to exactly match the target dimensions (may distort).
	ScaleModeStretch ScaleMode = iota
	// ScaleModeFit scales to fit within the target, preserving aspect ratio (letterbox).
	ScaleModeFit
	// ScaleModeFill scales to fill the target, preserving aspect ratio (crops).
	ScaleModeFill
)

// WithScaleMode sets the aspect ratio handling of scalers. The default is
// ScaleModeStretch.
func WithScaleMode(m ScaleMode) Option {
	return func(e *Engine) { e.scaleMode = m }
}

// region is a rectangle in luma pixels.
type region struct{ x, y, w, h int }

type scaleContext struct {
	in, out  av.VideoSpec
	src, dst region
}

// NewScaleContext implements av.ConvertEngine with bilinear scaling per
// plane. Pixel format conversion is not supported.
func (e *Engine) NewScaleContext(in, out av.VideoSpec) (av.ScaleContext, error) {
	if in.Width <= 0 || in.Height <= 0 || out.Width <= 0 || out.Height <= 0 {
		return nil, errors.Wrapf(av.ErrInvalidArgument, "pureav: scale %dx%d -> %dx%d", in.Width, in.Height, out.Width, out.Height)
	}
	if in.PixelFormat != out.PixelFormat {
		return nil, errors.Wrapf(av.ErrUnsupported, "pureav: pixel format conversion %s -> %s", in.PixelFormat, out.PixelFormat)
	}
	if in.PixelFormat.PlaneCount() == 0 {
		return nil, errors.Wrapf(av.ErrUnsupported, "pureav: pixel format %s", in.PixelFormat)
	}
	s := &scaleContext{in: in, out: out}
	s.src, s.dst = scaleRegions(in.Width, in.Height, out.Width, out.Height, e.scaleMode)
	return s, nil
}

// scaleRegions returns the source and destination rectangles for mode.
func scaleRegions(srcW, srcH, dstW, dstH int, mode ScaleMode) (src, dst region) {
	src = region{0, 0, srcW, srcH}
	dst = region{0, 0, dstW, dstH}
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)
	switch mode {
	case ScaleModeFill:
		if srcAspect > dstAspect {
			w := int(float64(srcH) * dstAspect)
			src = region{(srcW - w) / 2 &^ 1, 0, w, srcH}
		} else if srcAspect < dstAspect {
			h := int(float64(srcW) / dstAspect)
			src = region{0, (srcH - h) / 2 &^ 1, srcW, h}
		}
	case ScaleModeFit:
		if srcAspect > dstAspect {
			h := (int(float64(dstW)/srcAspect) + 1) &^ 1
			dst = region{0, (dstH - h) / 2 &^ 1, dstW, min(h, dstH)}
		} else if srcAspect < dstAspect {
			w := (int(float64(dstH)*srcAspect) + 1) &^ 1
			dst = region{(dstW - w) / 2 &^ 1, 0, min(w, dstW), dstH}
		}
	}
	return src, dst
}

// planeRegion maps a luma rectangle onto plane i of format p.
func planeRegion(p av.PixelFormat, plane int, r region) region {
	w, h := p.PlaneGeometry(r.w, r.h, plane)
	x, y := p.PlaneGeometry(r.x, r.y, plane)
	bpp := p.BytesPerPixel(plane)
	return region{x / bpp, y, w / bpp, h}
}

func (s *scaleContext) Scale(in, out *av.Frame) error {
	p := s.in.PixelFormat
	if len(in.Planes) < p.PlaneCount() || len(out.Planes) < p.PlaneCount() {
		return errors.Wrap(av.ErrInvalidArgument, "pureav: frame planes")
	}
	letterbox := s.dst != region{0, 0, s.out.Width, s.out.Height}
	for i := 0; i < p.PlaneCount(); i++ {
		if letterbox {
			fillBlack(p, i, out.Planes[i])
		}
		scalePlane(in.Planes[i], in.Linesize[i], planeRegion(p, i, s.src),
			out.Planes[i], out.Linesize[i], planeRegion(p, i, s.dst), p.BytesPerPixel(i))
	}
	out.PTS = in.PTS
	out.Duration = in.Duration
	out.KeyFrame = in.KeyFrame
	return nil
}

func (s *scaleContext) Close() error { return nil }

// fillBlack clears a plane to black.
func fillBlack(p av.PixelFormat, plane int, b []byte) {
	v := byte(0)
	switch p {
	case av.PixelFormatI420, av.PixelFormatYUV444P, av.PixelFormatNV12:
		v = 16
		if plane > 0 {
			v = 128
		}
	}
	for i := range b {
		b[i] = v
	}
	if p == av.PixelFormatRGBA || p == av.PixelFormatBGRA {
		for i := 3; i < len(b); i += 4 {
			b[i] = 0xFF
		}
	}
}

// scalePlane scales a single plane using bilinear interpolation. bpp
// interleaved components are interpolated independently.
func scalePlane(src []byte, srcStride int, sr region, dst []byte, dstStride int, dr region, bpp int) {
	if sr.w <= 0 || sr.h <= 0 || dr.w <= 0 || dr.h <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (sr.w << 16) / dr.w
	yRatio := (sr.h << 16) / dr.h

	for y := 0; y < dr.h; y++ {
		srcYFP := y * yRatio
		yWeight := srcYFP & 0xFFFF
		y0 := srcYFP>>16 + sr.y
		y1 := y0 + 1
		if y1 >= sr.y+sr.h {
			y1 = y0
		}
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[(y+dr.y)*dstStride:]

		for x := 0; x < dr.w; x++ {
			srcXFP := x * xRatio
			xWeight := srcXFP & 0xFFFF
			x0 := srcXFP>>16 + sr.x
			x1 := x0 + 1
			if x1 >= sr.x+sr.w {
				x1 = x0
			}
			for c := 0; c < bpp; c++ {
				p00 := int(row0[x0*bpp+c])
				p10 := int(row0[x1*bpp+c])
				p01 := int(row1[x0*bpp+c])
				p11 := int(row1[x1*bpp+c])

				top := (p00*(0x10000-xWeight) + p10*xWeight) >> 16
				bottom := (p01*(0x10000-xWeight) + p11*xWeight) >> 16
				out[(x+dr.x)*bpp+c] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
			}
		}
	}
}
