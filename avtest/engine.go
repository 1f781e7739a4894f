// Package avtest provides a scripted, deterministic av.Engine for tests.
//
// Codecs buffer a configurable number of units, demuxers replay a fixed
// packet list and muxers record what was written. Every engine verb is
// counted so tests can assert that a call did not reach the engine.
package avtest

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/thesyncim/av"
)

// ErrInjected is returned by verbs configured to fail.
var ErrInjected = errors.New("avtest: injected failure")

// CodecBehavior scripts a codec context.
type CodecBehavior struct {
	// Delay is the number of units held back before output starts, the
	// decoder latency or encoder lookahead.
	Delay int
	// QueueLimit makes Send return av.ErrAgain while this many units are
	// queued. Zero means unlimited.
	QueueLimit int
	// SendAgainEvery makes every nth send return av.ErrAgain without
	// consuming the input.
	SendAgainEvery int
	// PacketsPerFrame is the number of packets an encoder emits per frame.
	// Zero means one.
	PacketsPerFrame int
	// FailSendAt makes the nth send (1-based) fail. Zero never fails.
	FailSendAt int
	// FailReceiveAt makes the nth successful receive (1-based) fail.
	FailReceiveAt int
	FailOpen      bool
}

// FilterBehavior scripts a bitstream filter.
type FilterBehavior struct {
	// Outputs lists how many packets each send produces, cycling. Empty
	// means one packet per input.
	Outputs  []int
	FailInit bool
	FailSend bool
}

// Engine is a scripted av.Engine. Fields may be set before use; the zero
// value after New has no codecs, inputs or filters besides "null".
type Engine struct {
	CodecList []av.CodecDescriptor
	Behaviors map[string]CodecBehavior

	Inputs  map[string]*Input
	Outputs map[string]*Output
	// OutputFlags are reported by every muxer.
	OutputFlags av.FormatFlags
	// ContainerTimeBases overrides the stream time base a muxer settles on
	// at header time, per media type.
	ContainerTimeBases map[av.MediaType]av.Rational

	Filters map[string]FilterBehavior

	calls    map[string]int
	contexts []*codecContext
}

// New returns an engine offering the given codecs.
func New(codecs ...av.CodecDescriptor) *Engine {
	return &Engine{
		CodecList:          codecs,
		Behaviors:          map[string]CodecBehavior{},
		Inputs:             map[string]*Input{},
		Outputs:            map[string]*Output{},
		ContainerTimeBases: map[av.MediaType]av.Rational{},
		Filters:            map[string]FilterBehavior{"null": {}},
		calls:              map[string]int{},
	}
}

// VideoCodec returns a descriptor for a video codec that both encodes and
// decodes.
func VideoCodec(name string, id av.CodecID) av.CodecDescriptor {
	return av.CodecDescriptor{
		Name:         name,
		ID:           id,
		MediaType:    av.MediaTypeVideo,
		Encoder:      true,
		Decoder:      true,
		PixelFormats: []av.PixelFormat{av.PixelFormatI420},
	}
}

// AudioCodec returns a descriptor for an audio codec that both encodes and
// decodes.
func AudioCodec(name string, id av.CodecID) av.CodecDescriptor {
	return av.CodecDescriptor{
		Name:          name,
		ID:            id,
		MediaType:     av.MediaTypeAudio,
		Encoder:       true,
		Decoder:       true,
		SampleFormats: []av.SampleFormat{av.SampleFormatF32P},
	}
}

// Name implements av.Engine.
func (e *Engine) Name() string { return "avtest" }

func (e *Engine) count(verb string) {
	if e.calls == nil {
		e.calls = map[string]int{}
	}
	e.calls[verb]++
}

// Calls returns how often verb was invoked, for example "SendFrame".
func (e *Engine) Calls(verb string) int { return e.calls[verb] }

// ResetCalls clears the call counters.
func (e *Engine) ResetCalls() { e.calls = map[string]int{} }

// Codecs implements av.CodecEngine.
func (e *Engine) Codecs() []av.CodecDescriptor { return e.CodecList }

// FindDecoder implements av.CodecEngine.
func (e *Engine) FindDecoder(id av.CodecID) (av.CodecDescriptor, error) {
	for _, d := range e.CodecList {
		if d.Decoder && d.ID == id {
			return d, nil
		}
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrDecoderNotFound, "codec %s", id)
}

// FindEncoder implements av.CodecEngine.
func (e *Engine) FindEncoder(id av.CodecID) (av.CodecDescriptor, error) {
	for _, d := range e.CodecList {
		if d.Encoder && d.ID == id {
			return d, nil
		}
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrEncoderNotFound, "codec %s", id)
}

// FindEncoderByName implements av.CodecEngine.
func (e *Engine) FindEncoderByName(name string) (av.CodecDescriptor, error) {
	for _, d := range e.CodecList {
		if d.Encoder && d.Name == name {
			return d, nil
		}
	}
	return av.CodecDescriptor{}, errors.Wrapf(av.ErrEncoderNotFound, "encoder %q", name)
}

// NewCodecContext implements av.CodecEngine.
func (e *Engine) NewCodecContext(desc av.CodecDescriptor) (av.CodecContext, error) {
	e.count("NewCodecContext")
	c := &codecContext{
		engine:   e,
		desc:     desc,
		behavior: e.Behaviors[desc.Name],
		options:  map[string]any{},
	}
	e.contexts = append(e.contexts, c)
	return c, nil
}

// Options returns the options set on the most recent context of the named
// codec.
func (e *Engine) Options(codecName string) map[string]any {
	for i := len(e.contexts) - 1; i >= 0; i-- {
		if e.contexts[i].desc.Name == codecName {
			return e.contexts[i].options
		}
	}
	return nil
}

// Params returns the parameters of the most recent context of the named
// codec.
func (e *Engine) Params(codecName string) av.CodecParameters {
	for i := len(e.contexts) - 1; i >= 0; i-- {
		if e.contexts[i].desc.Name == codecName {
			return e.contexts[i].par
		}
	}
	return av.CodecParameters{}
}

// ParseBitstreamFilter implements av.FilterEngine.
func (e *Engine) ParseBitstreamFilter(desc string) (av.BSFContext, error) {
	e.count("ParseBitstreamFilter")
	b, ok := e.Filters[strings.TrimSpace(desc)]
	if !ok {
		return nil, errors.Errorf("avtest: unknown bitstream filter %q", desc)
	}
	return &bsfContext{engine: e, behavior: b}, nil
}
