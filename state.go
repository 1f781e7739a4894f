package av

import (
	"context"
	"errors"
	"log/slog"

	"github.com/looplab/fsm"
)

// Codec driver states shared by Decoder, Encoder and BitstreamFilter.
const (
	StateConfiguring = "configuring"
	StateReady       = "ready"
	StateAwaiting    = "awaiting_receive"
	StateDraining    = "draining"
	StateDrained     = "drained"
	StateFailed      = "failed"
)

const (
	eventOpen    = "open"
	eventSend    = "send"
	eventReceive = "receive"
	eventFlush   = "flush"
	eventEOF     = "eof"
	eventFail    = "fail"
)

// codecState tracks the send/receive protocol of one codec driver.
type codecState struct {
	machine *fsm.FSM
	log     *slog.Logger
}

func newCodecState(initial string, log *slog.Logger) *codecState {
	s := &codecState{log: log}
	s.machine = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateConfiguring}, Dst: StateReady},
			{Name: eventSend, Src: []string{StateReady}, Dst: StateAwaiting},
			{Name: eventReceive, Src: []string{StateAwaiting}, Dst: StateReady},
			{Name: eventFlush, Src: []string{StateReady, StateAwaiting}, Dst: StateDraining},
			{Name: eventEOF, Src: []string{StateReady, StateAwaiting, StateDraining}, Dst: StateDrained},
			{Name: eventFail, Src: []string{StateConfiguring, StateReady, StateAwaiting, StateDraining, StateDrained}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.log.Debug("codec state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return s
}

func (s *codecState) fire(event string) {
	err := s.machine.Event(context.Background(), event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	s.log.Debug("codec state event ignored", "event", event, "state", s.machine.Current(), "error", err)
}

func (s *codecState) current() string { return s.machine.Current() }

func (s *codecState) is(state string) bool { return s.machine.Is(state) }
