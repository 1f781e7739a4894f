package libav

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

type resampleContext struct {
	handle  uint64
	in, out av.AudioSpec
}

// NewResampleContext implements av.ConvertEngine.
func (e *Engine) NewResampleContext(in, out av.AudioSpec) (av.ResampleContext, error) {
	inFmt, outFmt := avSampleFmt(in.SampleFormat), avSampleFmt(out.SampleFormat)
	if inFmt < 0 || outFmt < 0 {
		return nil, errors.Wrapf(av.ErrUnsupported, "libav: resample %s -> %s", in.SampleFormat, out.SampleFormat)
	}
	h := mediaAVSwrCreate(int32(in.Channels), inFmt, int32(in.SampleRate), int32(out.Channels), outFmt, int32(out.SampleRate))
	if h == 0 {
		return nil, errors.Errorf("libav: create resampler: %s", lastError())
	}
	return &resampleContext{handle: h, in: in, out: out}, nil
}

// planePointers returns a heap array with one pointer per plane.
func planePointers(f *av.Frame) []uintptr {
	ptrs := make([]uintptr, len(f.Planes))
	for i, p := range f.Planes {
		ptrs[i] = uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	}
	return ptrs
}

func (r *resampleContext) Convert(in, out *av.Frame) error {
	if in.Channels != r.in.Channels || in.SampleFormat != r.in.SampleFormat {
		return errors.Wrapf(av.ErrInvalidArgument, "libav: resampler input %d ch %s, frame %d ch %s",
			r.in.Channels, r.in.SampleFormat, in.Channels, in.SampleFormat)
	}
	if !in.HasData() {
		return errors.Wrap(av.ErrInvalidArgument, "libav: resampler input frame has no data")
	}
	capacity := out.Capacity()
	if capacity == 0 {
		return errors.Wrap(av.ErrInvalidArgument, "libav: resampler output frame has no buffer")
	}
	// Plane views may be shortened by a previous SetNbSamples.
	if err := out.SetNbSamples(capacity); err != nil {
		return err
	}
	inPtrs, outPtrs := planePointers(in), planePointers(out)
	ret := mediaAVSwrConvert(r.handle,
		uintptr(unsafe.Pointer(&outPtrs[0])), int32(capacity),
		uintptr(unsafe.Pointer(&inPtrs[0])), int32(in.NbSamples))
	runtime.KeepAlive(in)
	runtime.KeepAlive(out)
	runtime.KeepAlive(inPtrs)
	runtime.KeepAlive(outPtrs)
	if ret < 0 {
		return status("resample", ret)
	}
	if err := out.SetNbSamples(int(ret)); err != nil {
		return err
	}
	out.PTS = in.PTS
	return nil
}

func (r *resampleContext) Close() error {
	if r.handle != 0 {
		mediaAVSwrDestroy(r.handle)
		r.handle = 0
	}
	return nil
}

type scaleContext struct {
	handle  uint64
	in, out av.VideoSpec
}

// NewScaleContext implements av.ConvertEngine.
func (e *Engine) NewScaleContext(in, out av.VideoSpec) (av.ScaleContext, error) {
	if in.Width <= 0 || in.Height <= 0 || out.Width <= 0 || out.Height <= 0 {
		return nil, errors.Wrapf(av.ErrInvalidArgument, "libav: scale %dx%d -> %dx%d", in.Width, in.Height, out.Width, out.Height)
	}
	inFmt, outFmt := avPixFmt(in.PixelFormat), avPixFmt(out.PixelFormat)
	if inFmt < 0 || outFmt < 0 {
		return nil, errors.Wrapf(av.ErrUnsupported, "libav: scale %s -> %s", in.PixelFormat, out.PixelFormat)
	}
	h := mediaAVSwsCreate(int32(in.Width), int32(in.Height), inFmt, int32(out.Width), int32(out.Height), outFmt, swsBilinear)
	if h == 0 {
		return nil, errors.Errorf("libav: create scaler: %s", lastError())
	}
	return &scaleContext{handle: h, in: in, out: out}, nil
}

func (s *scaleContext) Scale(in, out *av.Frame) error {
	if in.Width != s.in.Width || in.Height != s.in.Height || in.PixelFormat != s.in.PixelFormat {
		return errors.Wrapf(av.ErrInvalidArgument, "libav: scaler input %dx%d %s, frame %dx%d %s",
			s.in.Width, s.in.Height, s.in.PixelFormat, in.Width, in.Height, in.PixelFormat)
	}
	if !out.HasData() {
		return errors.Wrap(av.ErrInvalidArgument, "libav: scaler output frame has no buffer")
	}
	src, dst := cFrame(in), cFrame(out)
	ret := mediaAVSwsScale(s.handle, uintptr(unsafe.Pointer(src)), uintptr(unsafe.Pointer(dst)))
	runtime.KeepAlive(in)
	runtime.KeepAlive(out)
	runtime.KeepAlive(src)
	runtime.KeepAlive(dst)
	if ret < 0 {
		return status("scale", ret)
	}
	out.PTS, out.Duration, out.KeyFrame = in.PTS, in.Duration, in.KeyFrame
	return nil
}

func (s *scaleContext) Close() error {
	if s.handle != 0 {
		mediaAVSwsDestroy(s.handle)
		s.handle = 0
	}
	return nil
}
