// Package libav implements av.Engine on top of libavcodec, libavformat,
// libswscale and libswresample.
//
// The libraries are reached through libmedia_av, a flat C shim loaded at
// run time with purego, so the package builds without cgo. The shim is
// searched in MEDIA_AV_LIB_PATH, then MEDIA_SDK_LIB_PATH, then next to the
// executable, under build/ directories of the working tree and finally in
// the system library paths.
package libav

import (
	"io"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// ErrNotAvailable is returned when libmedia_av cannot be loaded.
var ErrNotAvailable = errors.New("libav: libmedia_av not available")

// Available reports whether libmedia_av is loaded and usable.
func Available() bool {
	return loadMediaAV() == nil
}

// LoadError returns the reason libmedia_av could not be loaded, nil when it
// is available.
func LoadError() error {
	return loadMediaAV()
}

// Version returns the shim's description of the linked libav libraries.
func Version() string {
	if loadMediaAV() != nil {
		return ""
	}
	return goStringFromPtr(mediaAVVersion())
}

func lastError() string {
	if mediaAVGetError == nil {
		return "unknown error"
	}
	if s := goStringFromPtr(mediaAVGetError()); s != "" {
		return s
	}
	return "unknown error"
}

// status converts a shim status code into the engine error convention.
func status(op string, ret int32) error {
	switch ret {
	case mediaAVOK:
		return nil
	case mediaAVErrorAgain:
		return av.ErrAgain
	case mediaAVErrorEOF:
		return io.EOF
	case mediaAVErrorInvalid:
		return errors.Wrapf(av.ErrInvalidArgument, "libav: %s: %s", op, lastError())
	case mediaAVErrorUnsupported:
		return errors.Wrapf(av.ErrUnsupported, "libav: %s: %s", op, lastError())
	case mediaAVErrorStream:
		return errors.Wrapf(av.ErrStreamNotFound, "libav: %s", op)
	case mediaAVErrorDecoder:
		return errors.Wrapf(av.ErrDecoderNotFound, "libav: %s", op)
	case mediaAVErrorEncoder:
		return errors.Wrapf(av.ErrEncoderNotFound, "libav: %s", op)
	case mediaAVErrorNoMem:
		return errors.Errorf("libav: %s: out of memory", op)
	default:
		if ret >= 0 {
			return nil
		}
		return errors.Errorf("libav: %s: %s (code %d)", op, lastError(), ret)
	}
}

// Engine is the libav av.Engine.
type Engine struct {
	log *slog.Logger

	codecsOnce sync.Once
	codecs     []av.CodecDescriptor
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New loads libmedia_av and returns an engine. The error wraps
// ErrNotAvailable when the shim cannot be loaded.
func New(opts ...Option) (*Engine, error) {
	if err := loadMediaAV(); err != nil {
		return nil, err
	}
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = av.Logger()
	}
	e.log = e.log.With("engine", "libav")
	e.log.Debug("loaded", "version", Version())
	return e, nil
}

// Name implements av.Engine.
func (e *Engine) Name() string { return "libav" }

// Codecs implements av.CodecEngine.
func (e *Engine) Codecs() []av.CodecDescriptor {
	e.codecsOnce.Do(func() {
		n := mediaAVCodecCount()
		info := &mediaAVCodecInfo{}
		for i := int32(0); i < n; i++ {
			if mediaAVCodecGet(i, uintptr(unsafe.Pointer(info))) != mediaAVOK {
				continue
			}
			e.codecs = append(e.codecs, descriptor(info))
		}
	})
	out := make([]av.CodecDescriptor, len(e.codecs))
	copy(out, e.codecs)
	return out
}

func descriptor(info *mediaAVCodecInfo) av.CodecDescriptor {
	d := av.CodecDescriptor{
		Name:      goStringFromPtr(info.Name),
		LongName:  goStringFromPtr(info.LongName),
		ID:        av.CodecID(goStringFromPtr(info.ID)),
		MediaType: mediaType(info.MediaType),
		Encoder:   info.Flags&mediaAVCodecEncoder != 0,
		Decoder:   info.Flags&mediaAVCodecDecoder != 0,
		Hardware:  info.Flags&mediaAVCodecHardware != 0,
	}
	for _, v := range int32Slice(info.PixFmts, info.NbPixFmts) {
		if p := goPixFmt(v); p != av.PixelFormatNone {
			d.PixelFormats = append(d.PixelFormats, p)
		}
	}
	for _, v := range int32Slice(info.SampleFmts, info.NbSampleFmts) {
		if s := goSampleFmt(v); s != av.SampleFormatNone {
			d.SampleFormats = append(d.SampleFormats, s)
		}
	}
	for _, v := range int32Slice(info.SampleRates, info.NbSampleRates) {
		d.SampleRates = append(d.SampleRates, int(v))
	}
	return d
}

// find returns the first codec matching ok, in the shim's preference order.
func (e *Engine) find(ok func(av.CodecDescriptor) bool) (av.CodecDescriptor, bool) {
	for _, d := range e.Codecs() {
		if ok(d) {
			return d, true
		}
	}
	return av.CodecDescriptor{}, false
}

// FindDecoder implements av.CodecEngine.
func (e *Engine) FindDecoder(id av.CodecID) (av.CodecDescriptor, error) {
	if d, ok := e.find(func(d av.CodecDescriptor) bool { return d.ID == id && d.Decoder }); ok {
		return d, nil
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrDecoderNotFound, "libav: no decoder for %s", id)
}

// FindEncoder implements av.CodecEngine.
func (e *Engine) FindEncoder(id av.CodecID) (av.CodecDescriptor, error) {
	if d, ok := e.find(func(d av.CodecDescriptor) bool { return d.ID == id && d.Encoder }); ok {
		return d, nil
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrEncoderNotFound, "libav: no encoder for %s", id)
}

// FindEncoderByName implements av.CodecEngine.
func (e *Engine) FindEncoderByName(name string) (av.CodecDescriptor, error) {
	if d, ok := e.find(func(d av.CodecDescriptor) bool { return d.Name == name && d.Encoder }); ok {
		return d, nil
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrEncoderNotFound, "libav: no encoder named %q", name)
}

var _ av.Engine = (*Engine)(nil)
