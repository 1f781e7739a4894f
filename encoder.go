package av

import (
	"errors"
	"io"
	"log/slog"
	"slices"
)

// DefaultAudioFrameCapacity is the sample capacity of writable audio frames
// for encoders without a fixed frame size, and the largest input block a
// StreamWriter accepts by default.
const DefaultAudioFrameCapacity = 8192

// Encoder drives an encoding codec context. Each EncodeFrame sends one frame
// and drains every packet the engine has ready into a reusable Packets arena.
type Encoder struct {
	ctx   CodecContext
	desc  CodecDescriptor
	par   CodecParameters
	state *codecState
	log   *slog.Logger

	drainer drainer
	flushed bool
}

// NewEncoder creates an encoder for id. When allowHWAccel is false hardware
// implementations are skipped.
func NewEncoder(eng CodecEngine, id CodecID, allowHWAccel bool, opts ...Option) (*Encoder, error) {
	for _, desc := range eng.Codecs() {
		if !desc.Encoder || desc.ID != id {
			continue
		}
		if desc.Hardware && !allowHWAccel {
			continue
		}
		return newEncoder(eng, desc, opts)
	}
	return nil, Errorf("encoder for %s not found: %w", id, ErrEncoderNotFound)
}

// NewEncoderByName creates the encoder implementation named name, for
// example "libx264".
func NewEncoderByName(eng CodecEngine, name string, opts ...Option) (*Encoder, error) {
	desc, err := eng.FindEncoderByName(name)
	if err != nil {
		return nil, Errorf("encoder %q not found: %w", name, err)
	}
	return newEncoder(eng, desc, opts)
}

func newEncoder(eng CodecEngine, desc CodecDescriptor, opts []Option) (*Encoder, error) {
	s := newSettings("encoder", opts)
	ctx, err := eng.NewCodecContext(desc)
	if err != nil {
		return nil, Errorf("failed to allocate the %s codec context: %w", desc.Name, err)
	}
	log := s.logger.With("codec", desc.Name)
	e := &Encoder{
		ctx:   ctx,
		desc:  desc,
		par:   ctx.Parameters(),
		state: newCodecState(StateConfiguring, log),
		log:   log,
	}
	e.par.MediaType = desc.MediaType
	e.par.CodecID = desc.ID
	e.setGenericDefaults()
	return e, nil
}

func (e *Encoder) setGenericDefaults() {
	switch e.desc.MediaType {
	case MediaTypeAudio:
		e.par.SampleFormat = SampleFormatFLTP
		if len(e.desc.SampleFormats) > 0 {
			e.par.SampleFormat = e.desc.SampleFormats[0]
		}
		e.par.BitRate = 64000
		e.par.SampleRate = preferred(e.desc.SampleRates, 44100)
		e.par.Channels = preferred(e.desc.ChannelCounts, 2)
	case MediaTypeVideo:
		e.par.GopSize = 12
		e.par.PixelFormat = PixelFormatYUV420P
		if len(e.desc.PixelFormats) > 0 {
			e.par.PixelFormat = e.desc.PixelFormats[0]
		}
		switch e.desc.ID {
		case CodecMPEG2Video:
			e.par.MaxBFrames = 2
		case CodecH264, CodecHEVC:
			// Let the codec pick GOP and quantizer bounds; rate control is CRF.
			e.par.GopSize = -1
			e.par.BitRate = 0
			if err := e.ctx.SetOption("qmin", -1); err != nil {
				e.log.Debug("qmin default not applied", "error", err)
			}
		}
	}
}

// preferred returns want when supported is empty or contains it, otherwise
// the first supported value.
func preferred(supported []int, want int) int {
	if len(supported) == 0 || slices.Contains(supported, want) {
		return want
	}
	return supported[0]
}

// SetVideoParams configures a video encoder. The time base becomes
// 1/frameRate and rate control is left to opts (for example crf).
func (e *Encoder) SetVideoParams(width, height int, frameRate Rational, opts Options) error {
	if !e.state.is(StateConfiguring) {
		return Errorf("encoder %s is already open", e.desc.Name)
	}
	if width <= 0 || height <= 0 || frameRate.IsZero() {
		return Errorf("invalid video parameters %dx%d @ %s: %w", width, height, frameRate, ErrInvalidArgument)
	}
	e.par.Width = width
	e.par.Height = height
	e.par.FrameRate = frameRate
	e.par.TimeBase = frameRate.Inv()
	e.par.BitRate = 0
	return Forward(opts.Apply(e.ctx, e.log))
}

// SetVideoParamsFPS is SetVideoParams with a floating point frame rate.
func (e *Encoder) SetVideoParamsFPS(width, height int, fps float64, opts Options) error {
	return Forward(e.SetVideoParams(width, height, RationalFromFloat(fps, 1<<20), opts))
}

// SetAudioParams configures an audio encoder. The time base becomes
// 1/sampleRate and experimental codecs are allowed.
func (e *Encoder) SetAudioParams(channels, sampleRate int, bitRate int64, opts Options) error {
	if !e.state.is(StateConfiguring) {
		return Errorf("encoder %s is already open", e.desc.Name)
	}
	if channels <= 0 || sampleRate <= 0 {
		return Errorf("invalid audio parameters %d channels @ %d Hz: %w", channels, sampleRate, ErrInvalidArgument)
	}
	e.par.Channels = channels
	e.par.SampleRate = sampleRate
	e.par.BitRate = bitRate
	e.par.TimeBase = R(1, sampleRate)
	e.par.StrictExperimental = true
	return Forward(opts.Apply(e.ctx, e.log))
}

// SetPixelFormat overrides the default pixel format.
func (e *Encoder) SetPixelFormat(p PixelFormat) { e.par.PixelFormat = p }

// SetSampleFormat overrides the default sample format.
func (e *Encoder) SetSampleFormat(s SampleFormat) { e.par.SampleFormat = s }

// SetGlobalHeader requests codec headers in extradata. Must precede Open.
func (e *Encoder) SetGlobalHeader(on bool) { e.par.GlobalHeader = on }

// Open applies the configuration and opens the codec.
func (e *Encoder) Open() error {
	if !e.state.is(StateConfiguring) {
		return Errorf("encoder %s is already open", e.desc.Name)
	}
	if err := e.ctx.SetParameters(e.par); err != nil {
		e.state.fire(eventFail)
		return Errorf("failed to configure %s encoder: %w", e.desc.Name, err)
	}
	if err := e.ctx.Open(); err != nil {
		e.state.fire(eventFail)
		return Errorf("failed to open %s encoder: %w", e.desc.Name, err)
	}
	e.par = e.ctx.Parameters()
	e.state.fire(eventOpen)
	e.log.Debug("encoder opened", "time_base", e.par.TimeBase, "bit_rate", e.par.BitRate)
	return nil
}

// NewWritableVideoFrame allocates a frame with the encoder's geometry.
func (e *Encoder) NewWritableVideoFrame() (*Frame, error) {
	f := NewFrame()
	f.MediaType = MediaTypeVideo
	f.Width = e.par.Width
	f.Height = e.par.Height
	f.PixelFormat = e.par.PixelFormat
	if err := f.AllocBuffer(); err != nil {
		return nil, Forward(err)
	}
	f.PTS = 0
	return f, nil
}

// NewWritableAudioFrame allocates a frame in the encoder's sample format
// holding up to capacity samples. capacity <= 0 picks the encoder frame size,
// or DefaultAudioFrameCapacity when the codec accepts any size.
func (e *Encoder) NewWritableAudioFrame(capacity int) (*Frame, error) {
	if capacity <= 0 {
		capacity = e.par.FrameSize
	}
	if capacity <= 0 {
		capacity = DefaultAudioFrameCapacity
	}
	f := NewFrame()
	f.MediaType = MediaTypeAudio
	f.Channels = e.par.Channels
	f.SampleRate = e.par.SampleRate
	f.SampleFormat = e.par.SampleFormat
	f.NbSamples = capacity
	if err := f.AllocBuffer(); err != nil {
		return nil, Forward(err)
	}
	f.PTS = 0
	return f, nil
}

// EncodeFrame sends frame and drains the produced packets into out, reusing
// its slots. On ResultFail the first n slots are still valid.
func (e *Encoder) EncodeFrame(frame *Frame, out *Packets) (int, Result, error) {
	switch e.state.current() {
	case StateConfiguring:
		return 0, ResultFail, Errorf("encoder %s is not open", e.desc.Name)
	case StateFailed:
		return 0, ResultFail, Errorf("encoder %s is in failed state", e.desc.Name)
	case StateDraining, StateDrained:
		return 0, ResultFail, Errorf("encoder %s was flushed", e.desc.Name)
	}
	if frame == nil {
		return 0, ResultFail, Errorf("nil frame: %w", ErrInvalidArgument)
	}
	if err := e.ctx.SendFrame(frame); err != nil {
		e.state.fire(eventFail)
		return 0, ResultFail, Errorf("error sending a frame for encoding: %w", err)
	}
	e.state.fire(eventSend)
	return e.receivePackets(out)
}

// Flush signals end of stream and drains the remaining packets. Only the
// first call talks to the engine; later calls return (0, ResultEOF, nil).
func (e *Encoder) Flush(out *Packets) (int, Result, error) {
	if e.flushed {
		e.log.Debug("encoder already flushed")
		return 0, ResultEOF, nil
	}
	switch e.state.current() {
	case StateConfiguring:
		return 0, ResultFail, Errorf("encoder %s is not open", e.desc.Name)
	case StateFailed:
		return 0, ResultFail, Errorf("encoder %s is in failed state", e.desc.Name)
	}
	e.flushed = true
	if err := e.ctx.SendFrame(nil); err != nil && !errors.Is(err, io.EOF) {
		e.state.fire(eventFail)
		return 0, ResultFail, Errorf("error sending flush to encoder: %w", err)
	}
	e.state.fire(eventFlush)
	return e.receivePackets(out)
}

func (e *Encoder) receivePackets(out *Packets) (int, Result, error) {
	n, err := e.drainer.drain(out, e.ctx.ReceivePacket)
	switch {
	case errors.Is(err, ErrAgain):
		if e.state.is(StateAwaiting) {
			e.state.fire(eventReceive)
		}
		return n, ResultSuccess, nil
	case errors.Is(err, io.EOF):
		e.state.fire(eventEOF)
		return n, ResultEOF, nil
	default:
		e.state.fire(eventFail)
		return n, ResultFail, Errorf("error during encoding: %w", err)
	}
}

// Flushed reports whether Flush was called.
func (e *Encoder) Flushed() bool { return e.flushed }

// State returns the protocol state.
func (e *Encoder) State() string { return e.state.current() }

// Descriptor returns the codec implementation.
func (e *Encoder) Descriptor() CodecDescriptor { return e.desc }

// Parameters returns the configured (after Open: effective) parameters.
func (e *Encoder) Parameters() CodecParameters { return e.par }

// TimeBase returns the time base of produced packets.
func (e *Encoder) TimeBase() Rational { return e.par.TimeBase }

// Close releases the codec context.
func (e *Encoder) Close() error {
	return e.ctx.Close()
}
