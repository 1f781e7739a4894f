package av

import "fmt"

// Frame is one raw (decoded) unit: a video picture or a block of audio
// samples. Planes are views into a reference counted Buffer; Ref and Clone
// share it.
//
// Format fields are only meaningful once set by a decoder, an allocator or
// the caller. A freshly created frame has none.
type Frame struct {
	buf *Buffer

	MediaType MediaType

	// Video
	Width       int
	Height      int
	PixelFormat PixelFormat
	KeyFrame    bool

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
	NbSamples    int

	PTS      int64
	Duration int64

	// Planes holds one slice per plane (video) or per channel for planar
	// audio. Packed audio uses a single plane.
	Planes   [][]byte
	Linesize []int
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	f := &Frame{}
	f.reset()
	return f
}

func (f *Frame) reset() {
	*f = Frame{PTS: NoPTS}
}

// Buffer returns the underlying buffer, nil when no data is attached.
func (f *Frame) Buffer() *Buffer { return f.buf }

// HasData reports whether planes are attached.
func (f *Frame) HasData() bool { return f.buf != nil }

// Capacity returns the number of audio samples per channel the attached
// buffer can hold.
func (f *Frame) Capacity() int {
	if f.MediaType != MediaTypeAudio || len(f.Planes) == 0 {
		return 0
	}
	bps := f.SampleFormat.BytesPerSample()
	if bps == 0 || f.Channels == 0 {
		return 0
	}
	if f.SampleFormat.Planar() {
		return cap(f.Planes[0]) / bps
	}
	return cap(f.Planes[0]) / (bps * f.Channels)
}

// AllocBuffer allocates planes for the format fields already set on the
// frame. Video needs Width, Height and PixelFormat; audio needs Channels,
// SampleFormat and NbSamples (the capacity). Any attached data is released.
func (f *Frame) AllocBuffer() error {
	switch f.MediaType {
	case MediaTypeVideo:
		if f.Width <= 0 || f.Height <= 0 || f.PixelFormat.PlaneCount() == 0 {
			return Errorf("cannot allocate video frame %dx%d %s: %w", f.Width, f.Height, f.PixelFormat, ErrInvalidArgument)
		}
		f.releaseData()
		f.buf = NewBuffer(f.PixelFormat.FrameSize(f.Width, f.Height))
		data := f.buf.Bytes()
		n := f.PixelFormat.PlaneCount()
		f.Planes = make([][]byte, n)
		f.Linesize = make([]int, n)
		off := 0
		for i := 0; i < n; i++ {
			w, h := f.PixelFormat.PlaneGeometry(f.Width, f.Height, i)
			f.Planes[i] = data[off : off+w*h : off+w*h]
			f.Linesize[i] = w
			off += w * h
		}
		return nil
	case MediaTypeAudio:
		bps := f.SampleFormat.BytesPerSample()
		if f.Channels <= 0 || bps == 0 || f.NbSamples <= 0 {
			return Errorf("cannot allocate audio frame: %d channels %s %d samples: %w", f.Channels, f.SampleFormat, f.NbSamples, ErrInvalidArgument)
		}
		f.releaseData()
		f.buf = NewBuffer(f.Channels * f.NbSamples * bps)
		data := f.buf.Bytes()
		data = data[:len(data):len(data)]
		if f.SampleFormat.Planar() {
			size := f.NbSamples * bps
			f.Planes = make([][]byte, f.Channels)
			f.Linesize = make([]int, f.Channels)
			for c := 0; c < f.Channels; c++ {
				f.Planes[c] = data[c*size : (c+1)*size : (c+1)*size]
				f.Linesize[c] = size
			}
		} else {
			f.Planes = [][]byte{data}
			f.Linesize = []int{len(data)}
		}
		return nil
	default:
		return Errorf("cannot allocate frame of media type %s: %w", f.MediaType, ErrInvalidArgument)
	}
}

// SetNbSamples sets the valid sample count of an allocated audio frame,
// resizing the plane views within the buffer's capacity.
func (f *Frame) SetNbSamples(n int) error {
	if n > f.Capacity() {
		return Errorf("audio frame holds %d samples, %d requested", f.Capacity(), n)
	}
	bps := f.SampleFormat.BytesPerSample()
	for i := range f.Planes {
		if f.SampleFormat.Planar() {
			f.Planes[i] = f.Planes[i][:n*bps]
		} else {
			f.Planes[i] = f.Planes[i][:n*bps*f.Channels]
		}
		f.Linesize[i] = len(f.Planes[i])
	}
	f.NbSamples = n
	return nil
}

func (f *Frame) releaseData() {
	if f.buf != nil {
		f.buf.release()
	}
	f.buf = nil
	f.Planes = nil
	f.Linesize = nil
}

// Ref makes f reference src's buffer and copies all its fields.
func (f *Frame) Ref(src *Frame) {
	if f == src {
		return
	}
	f.Unref()
	*f = *src
	if src.buf != nil {
		f.buf = src.buf.ref()
	}
	f.Planes = append([][]byte(nil), src.Planes...)
	f.Linesize = append([]int(nil), src.Linesize...)
}

// Clone returns a new frame sharing f's buffer.
func (f *Frame) Clone() *Frame {
	c := NewFrame()
	c.Ref(f)
	return c
}

// CopyProps copies timing properties, not format or data.
func (f *Frame) CopyProps(src *Frame) {
	f.PTS = src.PTS
	f.Duration = src.Duration
	f.KeyFrame = src.KeyFrame
}

// Unref releases the data and resets every field.
func (f *Frame) Unref() {
	f.releaseData()
	f.reset()
}

// MoveRef moves f into dst, leaving f empty.
func (f *Frame) MoveRef(dst *Frame) {
	if f == dst {
		return
	}
	dst.Unref()
	*dst = *f
	f.reset()
}

// IsWritable reports whether f holds the only reference to its data.
func (f *Frame) IsWritable() bool { return f.buf != nil && f.buf.Writable() }

// MakeWritable copies the data into a private buffer if it is shared.
func (f *Frame) MakeWritable() error {
	if f.buf == nil || f.buf.Writable() {
		return nil
	}
	planes := f.Planes
	nb := f.NbSamples
	if f.MediaType == MediaTypeAudio {
		f.NbSamples = f.Capacity()
	}
	old := f.buf
	f.buf = nil
	if err := f.AllocBuffer(); err != nil {
		f.buf = old
		f.Planes = planes
		return Forward(err)
	}
	for i := range planes {
		copy(f.Planes[i], planes[i])
	}
	old.release()
	if f.MediaType == MediaTypeAudio {
		return f.SetNbSamples(nb)
	}
	return nil
}

// CopyData copies plane data from src, which must have identical geometry.
func (f *Frame) CopyData(src *Frame) error {
	if len(f.Planes) != len(src.Planes) {
		return Errorf("frame plane count mismatch: %d != %d", len(f.Planes), len(src.Planes))
	}
	for i := range src.Planes {
		if len(f.Planes[i]) < len(src.Planes[i]) {
			return Errorf("plane %d too small: %d < %d", i, len(f.Planes[i]), len(src.Planes[i]))
		}
		copy(f.Planes[i], src.Planes[i])
	}
	return nil
}

func (f *Frame) String() string {
	switch f.MediaType {
	case MediaTypeVideo:
		return fmt.Sprintf("video %dx%d %s pts=%d", f.Width, f.Height, f.PixelFormat, f.PTS)
	case MediaTypeAudio:
		return fmt.Sprintf("audio %dch %dHz %s samples=%d pts=%d", f.Channels, f.SampleRate, f.SampleFormat, f.NbSamples, f.PTS)
	default:
		return "empty frame"
	}
}
