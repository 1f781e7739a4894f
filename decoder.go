package av

import (
	"errors"
	"io"
	"log/slog"
)

// Decoder drives a decoding codec context: one send followed by exactly one
// receive per call.
type Decoder struct {
	ctx       CodecContext
	stream    StreamInfo
	frameRate Rational
	state     *codecState
	log       *slog.Logger

	// pending holds packets the engine refused with ErrAgain, in order.
	pending []*Packet
}

// NewDecoder creates and opens a decoder for stream. Video streams need a
// non-zero frameRate.
func NewDecoder(eng CodecEngine, desc CodecDescriptor, stream StreamInfo, frameRate Rational, opts ...Option) (*Decoder, error) {
	s := newSettings("decoder", opts)
	if !desc.Decoder {
		return nil, Errorf("codec %s is not a decoder", desc.Name)
	}
	ctx, err := eng.NewCodecContext(desc)
	if err != nil {
		return nil, Errorf("failed to allocate the %s codec context: %w", desc.Name, err)
	}
	par := stream.Params
	par.TimeBase = stream.TimeBase
	if par.MediaType == MediaTypeVideo {
		if frameRate.IsZero() {
			ctx.Close()
			return nil, Errorf("Framerate is not set")
		}
		par.FrameRate = frameRate
	}
	if err := ctx.SetParameters(par); err != nil {
		ctx.Close()
		return nil, Errorf("failed to copy %s codec parameters to decoder context: %w", desc.Name, err)
	}
	if err := ctx.Open(); err != nil {
		ctx.Close()
		return nil, Errorf("failed to open %s codec: %w", desc.Name, err)
	}
	log := s.logger.With("codec", desc.Name, "stream", stream.Index)
	return &Decoder{
		ctx:       ctx,
		stream:    stream,
		frameRate: frameRate,
		state:     newCodecState(StateReady, log),
		log:       log,
	}, nil
}

// Decode sends pkt and receives at most one frame. An empty pkt (or nil)
// signals end of stream: the decoder is flushed once and subsequent calls
// only drain buffered frames. Once drained every call returns ResultEOF.
//
// If the engine refuses a packet with ErrAgain the packet is kept and sent
// again ahead of the next one, so no input is lost.
func (d *Decoder) Decode(pkt *Packet, frame *Frame) (Result, error) {
	switch d.state.current() {
	case StateFailed:
		return ResultFail, Errorf("decoder %s is in failed state", d.ctx.Descriptor().Name)
	case StateDrained:
		return ResultEOF, nil
	}

	if pkt == nil || pkt.IsEmpty() {
		if !d.state.is(StateDraining) {
			if err := d.sendPending(); err != nil {
				return d.sendFailed(err)
			}
			if len(d.pending) == 0 {
				if err := d.ctx.SendPacket(nil); err != nil && !errors.Is(err, io.EOF) {
					d.state.fire(eventFail)
					return ResultFail, Errorf("error sending flush to decoder: %w", err)
				}
				d.state.fire(eventFlush)
			}
		}
	} else {
		if len(d.pending) == 0 {
			err := d.ctx.SendPacket(pkt)
			switch {
			case err == nil:
			case errors.Is(err, ErrAgain):
				d.pending = append(d.pending, pkt.Clone())
			default:
				return d.sendFailed(err)
			}
		} else {
			d.pending = append(d.pending, pkt.Clone())
			if err := d.sendPending(); err != nil {
				return d.sendFailed(err)
			}
		}
		d.state.fire(eventSend)
	}

	return d.receive(frame)
}

func (d *Decoder) sendPending() error {
	for len(d.pending) > 0 {
		err := d.ctx.SendPacket(d.pending[0])
		if errors.Is(err, ErrAgain) {
			return nil
		}
		if err != nil {
			return err
		}
		d.pending[0].Unref()
		d.pending[0] = nil
		d.pending = d.pending[1:]
	}
	return nil
}

func (d *Decoder) sendFailed(err error) (Result, error) {
	if errors.Is(err, io.EOF) {
		d.state.fire(eventEOF)
		return ResultEOF, nil
	}
	d.state.fire(eventFail)
	return ResultFail, Errorf("error sending a packet for decoding: %w", err)
}

func (d *Decoder) receive(frame *Frame) (Result, error) {
	frame.Unref()
	err := d.ctx.ReceiveFrame(frame)
	switch {
	case err == nil:
		if frame.MediaType == MediaTypeUnknown {
			frame.MediaType = d.stream.Params.MediaType
		}
		if d.state.is(StateAwaiting) {
			d.state.fire(eventReceive)
		}
		return ResultSuccess, nil
	case errors.Is(err, ErrAgain):
		if d.state.is(StateAwaiting) {
			d.state.fire(eventReceive)
		}
		return ResultAgain, nil
	case errors.Is(err, io.EOF):
		d.state.fire(eventEOF)
		return ResultEOF, nil
	default:
		d.state.fire(eventFail)
		return ResultFail, Errorf("error during decoding: %w", err)
	}
}

// Pending returns the number of packets waiting to be resent.
func (d *Decoder) Pending() int { return len(d.pending) }

// State returns the protocol state.
func (d *Decoder) State() string { return d.state.current() }

// Parameters returns the decoder context parameters.
func (d *Decoder) Parameters() CodecParameters { return d.ctx.Parameters() }

// Stream returns the stream the decoder was created for.
func (d *Decoder) Stream() StreamInfo { return d.stream }

// TimeBase returns the time base of decoded timestamps.
func (d *Decoder) TimeBase() Rational { return d.stream.TimeBase }

// FrameRate returns the frame rate given at construction.
func (d *Decoder) FrameRate() Rational { return d.frameRate }

// Close releases the codec context and any pending packets.
func (d *Decoder) Close() error {
	for _, p := range d.pending {
		p.Unref()
	}
	d.pending = nil
	return d.ctx.Close()
}
