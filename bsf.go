package av

import (
	"errors"
	"io"
	"log/slog"
)

// BitstreamFilter rewrites compressed packets without decoding them, for
// example converting H.264 from length-prefixed to Annex-B framing.
type BitstreamFilter struct {
	ctx     BSFContext
	desc    string
	state   *codecState
	log     *slog.Logger
	metrics *Metrics
	drainer drainer
}

// NewBitstreamFilter parses description (a comma separated filter chain),
// configures it for input parameters par in time base tb and initializes it.
func NewBitstreamFilter(eng FilterEngine, description string, par CodecParameters, tb Rational, opts ...Option) (*BitstreamFilter, error) {
	s := newSettings("bsf", opts)
	ctx, err := eng.ParseBitstreamFilter(description)
	if err != nil {
		return nil, Errorf("failed to parse bitstream filter %q: %w", description, err)
	}
	if err := ctx.SetInputParameters(par, tb); err != nil {
		ctx.Close()
		return nil, Errorf("failed to copy codec parameters to bitstream filter %q: %w", description, err)
	}
	if err := ctx.Init(); err != nil {
		ctx.Close()
		return nil, Errorf("failed to initialize bitstream filter %q: %w", description, err)
	}
	log := s.logger.With("filter", description)
	return &BitstreamFilter{
		ctx:     ctx,
		desc:    description,
		state:   newCodecState(StateReady, log),
		log:     log,
		metrics: s.metrics,
	}, nil
}

// Apply sends in through the filter and drains the output into out, reusing
// its slots. An empty in flushes the filter. ResultSuccess means the filter
// wants more input; ResultEOF means it is closed.
func (b *BitstreamFilter) Apply(in *Packet, out *Packets) (int, Result, error) {
	switch b.state.current() {
	case StateFailed:
		return 0, ResultFail, Errorf("bitstream filter %q is in failed state", b.desc)
	case StateDrained:
		return 0, ResultEOF, nil
	}
	var send *Packet
	if in != nil && !in.IsEmpty() {
		send = in
	}
	if send == nil && b.state.is(StateDraining) {
		return b.receive(out)
	}
	if err := b.ctx.SendPacket(send); err != nil {
		if errors.Is(err, io.EOF) {
			b.state.fire(eventEOF)
			return 0, ResultEOF, nil
		}
		b.state.fire(eventFail)
		return 0, ResultFail, Errorf("error sending a packet to bitstream filter %q: %w", b.desc, err)
	}
	if send == nil {
		b.state.fire(eventFlush)
	} else {
		b.state.fire(eventSend)
	}
	return b.receive(out)
}

func (b *BitstreamFilter) receive(out *Packets) (int, Result, error) {
	n, err := b.drainer.drain(out, b.ctx.ReceivePacket)
	b.metrics.bsfOutput(n)
	switch {
	case errors.Is(err, ErrAgain):
		if b.state.is(StateAwaiting) {
			b.state.fire(eventReceive)
		}
		return n, ResultSuccess, nil
	case errors.Is(err, io.EOF):
		b.state.fire(eventEOF)
		return n, ResultEOF, nil
	default:
		b.state.fire(eventFail)
		return n, ResultFail, Errorf("error filtering packets with %q: %w", b.desc, err)
	}
}

// OutputParameters returns the parameters of the filtered stream.
func (b *BitstreamFilter) OutputParameters() CodecParameters { return b.ctx.OutputParameters() }

// State returns the protocol state.
func (b *BitstreamFilter) State() string { return b.state.current() }

// Close releases the filter.
func (b *BitstreamFilter) Close() error { return b.ctx.Close() }
