package relay

import (
	"context"
	"log/slog"

	"github.com/qmuntal/stateless"
)

// Turn states
type turnState stateless.State

var (
	stateIdle        turnState = "Idle"
	stateSessionOpen turnState = "SessionOpen"
	stateStreaming   turnState = "Streaming"
	stateCompleted   turnState = "Completed" // Terminal: end emitted
	stateFailed      turnState = "Failed"    // Terminal: error emitted
)

// Turn triggers
type turnTrigger stateless.Trigger

var (
	triggerAnnounce turnTrigger = "Announce"
	triggerDelta    turnTrigger = "Delta"
	triggerFinish   turnTrigger = "Finish"
	triggerFail     turnTrigger = "Fail"
)

// turn enforces the outbound event order for one request: session first, then
// any number of text events, then exactly one of end or error. Events are
// emitted from the transition actions, so a trigger the current state does not
// permit produces no output and returns an error.
type turn struct {
	sm        *stateless.StateMachine
	sessionID string
	sink      Sink
	log       *slog.Logger
	detached  bool
}

func newTurn(sessionID string, sink Sink, log *slog.Logger) *turn {
	t := &turn{sessionID: sessionID, sink: sink, log: log}

	sm := stateless.NewStateMachine(stateIdle)

	sm.Configure(stateIdle).
		Permit(triggerAnnounce, stateSessionOpen)

	sm.Configure(stateSessionOpen).
		OnEntryFrom(triggerAnnounce, func(ctx context.Context, _ ...any) error {
			t.emit(ctx, EventSession, "")
			return nil
		}).
		Permit(triggerDelta, stateStreaming).
		Permit(triggerFinish, stateCompleted).
		Permit(triggerFail, stateFailed)

	sm.Configure(stateStreaming).
		OnEntryFrom(triggerDelta, t.onDelta).
		InternalTransition(triggerDelta, t.onDelta).
		Permit(triggerFinish, stateCompleted).
		Permit(triggerFail, stateFailed)

	sm.Configure(stateCompleted).
		OnEntryFrom(triggerFinish, func(ctx context.Context, _ ...any) error {
			t.emit(ctx, EventEnd, "")
			return nil
		})

	sm.Configure(stateFailed).
		OnEntryFrom(triggerFail, func(ctx context.Context, args ...any) error {
			t.emit(ctx, EventError, textArg(args))
			return nil
		})

	t.sm = sm
	return t
}

func (t *turn) onDelta(ctx context.Context, args ...any) error {
	t.emit(ctx, EventText, textArg(args))
	return nil
}

func textArg(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

// emit forwards one event unless the client is already gone. The first sink
// failure or cancelled request context detaches the turn for good.
func (t *turn) emit(ctx context.Context, kind EventKind, content string) {
	if t.detached {
		return
	}
	if err := ctx.Err(); err != nil {
		t.detach(kind, err)
		return
	}
	if err := t.sink(Event{Kind: kind, Content: content, SessionID: t.sessionID}); err != nil {
		t.detach(kind, err)
	}
}

func (t *turn) detach(kind EventKind, err error) {
	t.detached = true
	t.log.Warn("client detached, no longer forwarding", "event", string(kind), "error", err)
}

func (t *turn) announce(ctx context.Context) error {
	return t.sm.FireCtx(ctx, triggerAnnounce)
}

func (t *turn) delta(ctx context.Context, text string) error {
	return t.sm.FireCtx(ctx, triggerDelta, text)
}

func (t *turn) finish(ctx context.Context) error {
	return t.sm.FireCtx(ctx, triggerFinish)
}

func (t *turn) fail(ctx context.Context, message string) error {
	return t.sm.FireCtx(ctx, triggerFail, message)
}

func (t *turn) state() turnState {
	s, _ := t.sm.MustState().(turnState)
	return s
}
