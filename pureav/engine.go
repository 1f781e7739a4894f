// Package pureav implements av.Engine in Go.
//
// It covers what can be done without native libraries: raw video and PCM
// codecs, WebM/Matroska, IVF, Ogg/Opus and H.264 Annex-B demuxing, WebM and
// Ogg muxing, a set of bitstream filters, and software scaling and
// resampling. Compressed codecs are described so their streams can be
// demuxed and copied, but cannot be decoded or encoded.
package pureav

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// Engine is the Go av.Engine.
type Engine struct {
	log *slog.Logger
	// rawFrameRate is assumed for elementary streams without timing.
	rawFrameRate av.Rational
	scaleMode    ScaleMode
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRawFrameRate sets the frame rate assumed for H.264 elementary streams
// whose SPS carries no timing information.
func WithRawFrameRate(r av.Rational) Option {
	return func(e *Engine) { e.rawFrameRate = r }
}

// New returns an engine.
func New(opts ...Option) *Engine {
	e := &Engine{rawFrameRate: av.R(25, 1)}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = av.Logger()
	}
	e.log = e.log.With("engine", "pureav")
	return e
}

// Name implements av.Engine.
func (e *Engine) Name() string { return "pureav" }

var rawPixelFormats = []av.PixelFormat{
	av.PixelFormatI420, av.PixelFormatNV12, av.PixelFormatYUV444P,
	av.PixelFormatRGB24, av.PixelFormatRGBA, av.PixelFormatBGRA,
}

// Static codec table. Compressed codecs have neither Encoder nor Decoder
// set.
var codecTable = []av.CodecDescriptor{
	{Name: "rawvideo", LongName: "raw video", ID: av.CodecRawVideo, MediaType: av.MediaTypeVideo,
		Encoder: true, Decoder: true, PixelFormats: rawPixelFormats},
	{Name: "pcm_s16le", LongName: "PCM signed 16-bit little-endian", ID: av.CodecPCMS16LE, MediaType: av.MediaTypeAudio,
		Encoder: true, Decoder: true, SampleFormats: []av.SampleFormat{av.SampleFormatS16}},
	{Name: "pcm_f32le", LongName: "PCM 32-bit floating point little-endian", ID: av.CodecPCMF32LE, MediaType: av.MediaTypeAudio,
		Encoder: true, Decoder: true, SampleFormats: []av.SampleFormat{av.SampleFormatF32}},
	{Name: "h264", LongName: "H.264 / AVC", ID: av.CodecH264, MediaType: av.MediaTypeVideo},
	{Name: "hevc", LongName: "H.265 / HEVC", ID: av.CodecHEVC, MediaType: av.MediaTypeVideo},
	{Name: "vp8", LongName: "On2 VP8", ID: av.CodecVP8, MediaType: av.MediaTypeVideo},
	{Name: "vp9", LongName: "Google VP9", ID: av.CodecVP9, MediaType: av.MediaTypeVideo},
	{Name: "av1", LongName: "Alliance for Open Media AV1", ID: av.CodecAV1, MediaType: av.MediaTypeVideo},
	{Name: "mpeg2video", LongName: "MPEG-2 video", ID: av.CodecMPEG2Video, MediaType: av.MediaTypeVideo},
	{Name: "opus", LongName: "Opus", ID: av.CodecOpus, MediaType: av.MediaTypeAudio,
		SampleRates: []int{48000, 24000, 16000, 12000, 8000}},
	{Name: "aac", LongName: "AAC (Advanced Audio Coding)", ID: av.CodecAAC, MediaType: av.MediaTypeAudio},
	{Name: "mp3", LongName: "MP3 (MPEG audio layer 3)", ID: av.CodecMP3, MediaType: av.MediaTypeAudio},
}

// Codecs implements av.CodecEngine.
func (e *Engine) Codecs() []av.CodecDescriptor {
	out := make([]av.CodecDescriptor, len(codecTable))
	copy(out, codecTable)
	return out
}

func (e *Engine) describe(id av.CodecID) (av.CodecDescriptor, bool) {
	for _, d := range codecTable {
		if d.ID == id {
			return d, true
		}
	}
	return av.CodecDescriptor{}, false
}

// FindDecoder implements av.CodecEngine.
func (e *Engine) FindDecoder(id av.CodecID) (av.CodecDescriptor, error) {
	if d, ok := e.describe(id); ok && d.Decoder {
		return d, nil
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrDecoderNotFound, "pureav: no decoder for %s", id)
}

// FindEncoder implements av.CodecEngine.
func (e *Engine) FindEncoder(id av.CodecID) (av.CodecDescriptor, error) {
	if d, ok := e.describe(id); ok && d.Encoder {
		return d, nil
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrEncoderNotFound, "pureav: no encoder for %s", id)
}

// FindEncoderByName implements av.CodecEngine.
func (e *Engine) FindEncoderByName(name string) (av.CodecDescriptor, error) {
	for _, d := range codecTable {
		if d.Name == name && d.Encoder {
			return d, nil
		}
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrEncoderNotFound, "pureav: no encoder named %q", name)
}

// NewCodecContext implements av.CodecEngine.
func (e *Engine) NewCodecContext(desc av.CodecDescriptor) (av.CodecContext, error) {
	d, ok := e.describe(desc.ID)
	if !ok || d.Name != desc.Name || !(d.Encoder || d.Decoder) {
		return nil, errors.Wrapf(av.ErrUnsupported, "pureav: codec %s (%s)", desc.Name, desc.ID)
	}
	return &codecContext{
		desc: d,
		par:  av.CodecParameters{MediaType: d.MediaType, CodecID: d.ID},
		log:  e.log.With("codec", d.Name),
	}, nil
}

var _ av.Engine = (*Engine)(nil)
