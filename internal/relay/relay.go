// Package relay runs one chat turn: it resolves the session, records the user
// message, streams the provider reply to the client and records the reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/concierge-go/internal/history"
	"github.com/comigor/concierge-go/internal/llm"
	"github.com/comigor/concierge-go/internal/logger"
	"github.com/comigor/concierge-go/internal/prompt"
)

// FailureText is the only failure detail a client ever sees.
const FailureText = "We hit an unexpected issue while generating the concierge reply. Please try again shortly or reach our staff directly."

// FallbackText replaces a reply that came back empty.
const FallbackText = "I'm sorry, I couldn't craft a reply just now. Please rephrase or contact our concierge team."

// DiagnosticText is the reply recorded when no provider is configured.
func DiagnosticText(message string) string {
	return "Unable to reach the OpenAI service right now. Please check the server logs.\n\n" +
		"Message waiting to send: " + message + "\n" +
		"Confirm that OPENAI_API_KEY is configured before retrying."
}

// Settings is the fixed per-process relay configuration.
type Settings struct {
	Model           string
	HistoryWindow   int
	ProviderTimeout time.Duration
	Context         prompt.Context
}

// Request is one inbound chat message. A blank SessionID starts a new session.
type Request struct {
	SessionID string
	Message   string
}

// Relay answers chat turns over a history store and an optional provider.
// It is safe for concurrent use when both collaborators are.
type Relay struct {
	store    history.Store
	provider llm.Provider
	settings Settings

	now   func() time.Time
	newID func() string
}

// New builds a relay. A nil provider runs the relay in degraded mode, where
// every turn is answered with DiagnosticText. A zero HistoryWindow means
// history.DefaultWindow.
func New(store history.Store, provider llm.Provider, settings Settings) *Relay {
	if settings.HistoryWindow == 0 {
		settings.HistoryWindow = history.DefaultWindow
	}
	settings.HistoryWindow = history.ClampWindow(settings.HistoryWindow)
	return &Relay{
		store:    store,
		provider: provider,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newSessionID,
	}
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Degraded reports whether the relay answers without a provider.
func (r *Relay) Degraded() bool {
	return r.provider == nil
}

// Handle runs one turn, delivering events to sink in order. An *Error with
// code ErrorInvalidInput or ErrorStorage returned before any event was
// delivered leaves nothing to undo. After the session event every outcome is
// also reported in-band and the returned error is informational.
func (r *Relay) Handle(ctx context.Context, req Request, sink Sink) error {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return newError(ErrorInvalidInput, "message is required", nil)
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = r.newID()
	}
	sessionID, err := r.store.Upsert(ctx, sessionID, r.now())
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert chat session", "session_id", sessionID, "error", err)
		return newError(ErrorStorage, "upsert session", err)
	}

	log := logger.FromContext(ctx).With("session_id", sessionID)
	t := newTurn(sessionID, sink, log)
	if err := t.announce(ctx); err != nil {
		return fmt.Errorf("relay: announce session: %w", err)
	}
	log.Info("streaming response")

	window, err := r.store.Recent(ctx, sessionID, r.settings.HistoryWindow)
	if err != nil {
		return r.abort(ctx, t, log, newError(ErrorStorage, "read history", err))
	}
	userAt, err := r.record(ctx, log, sessionID, history.RoleUser, message, time.Time{})
	if err != nil {
		return r.abort(ctx, t, log, newError(ErrorStorage, "append user message", err))
	}

	// Client disconnects must not lose the reply, so everything after the user
	// message is persisted under a context that outlives the request.
	persistCtx := context.WithoutCancel(ctx)

	if r.provider == nil {
		reply := DiagnosticText(message)
		if _, err := r.record(persistCtx, log, sessionID, history.RoleAssistant, reply, userAt); err != nil {
			return r.abort(ctx, t, log, newError(ErrorStorage, "append diagnostic reply", err))
		}
		log.Warn("no provider configured, answered with diagnostic text")
		if err := t.delta(ctx, reply); err != nil {
			return fmt.Errorf("relay: forward diagnostic: %w", err)
		}
		return t.finish(ctx)
	}

	messages := prompt.Assemble(r.settings.Context, window, message)
	reply, err := r.stream(ctx, t, messages)
	if err != nil {
		return r.abort(ctx, t, log, err)
	}

	if _, err := r.record(persistCtx, log, sessionID, history.RoleAssistant, reply, userAt); err != nil {
		return r.abort(ctx, t, log, newError(ErrorStorage, "append assistant reply", err))
	}
	return t.finish(ctx)
}

// stream drives the provider and forwards deltas. It returns the reply to
// persist, which is never empty. A stream that ends before its Done event
// is a provider failure.
func (r *Relay) stream(ctx context.Context, t *turn, messages []llm.Message) (string, error) {
	pctx := context.WithoutCancel(ctx)
	if r.settings.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, r.settings.ProviderTimeout)
		defer cancel()
	}

	stream, err := r.provider.OpenStream(pctx, r.settings.Model, messages)
	if err != nil {
		return "", newError(ErrorProviderFailure, "open stream", err)
	}
	defer stream.Close()

	var (
		accumulated strings.Builder
		final       *llm.Response
	)
loop:
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", newError(ErrorProviderFailure, "read stream", err)
		}
		switch ev.Kind {
		case llm.EventDelta:
			if ev.Text == "" {
				continue
			}
			accumulated.WriteString(ev.Text)
			if err := t.delta(ctx, ev.Text); err != nil {
				return "", fmt.Errorf("relay: forward delta: %w", err)
			}
		case llm.EventError:
			return "", newError(ErrorProviderFailure, "provider error unit", &llm.ProviderError{Message: ev.Text})
		case llm.EventDone:
			final = ev.Final
			break loop
		}
	}

	if reply := strings.TrimSpace(accumulated.String()); reply != "" {
		return reply, nil
	}

	if reply := final.OutputText(); reply != "" {
		t.log.Info("provider streamed no deltas, salvaged final output")
		return reply, nil
	}
	t.log.Warn("provider returned no text, using fallback")
	if err := t.delta(ctx, FallbackText); err != nil {
		return "", fmt.Errorf("relay: forward fallback: %w", err)
	}
	return FallbackText, nil
}

// abort reports a failure after the session event: the detail is logged and
// the client gets FailureText.
func (r *Relay) abort(ctx context.Context, t *turn, log *slog.Logger, err error) error {
	log.Error("chat turn failed", "error", err)
	if ferr := t.fail(ctx, FailureText); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// record appends one message stamped no earlier than notBefore and refreshes
// the session activity time. A touch failure is logged only.
func (r *Relay) record(ctx context.Context, log *slog.Logger, sessionID string, role history.Role, content string, notBefore time.Time) (time.Time, error) {
	at := r.now()
	if at.Before(notBefore) {
		at = notBefore
	}
	if _, err := r.store.Append(ctx, history.Message{SessionID: sessionID, Role: role, Content: content, CreatedAt: at}); err != nil {
		return time.Time{}, err
	}
	if err := r.store.Touch(ctx, sessionID, at); err != nil {
		log.Warn("failed to touch chat session", "error", err)
	}
	return at, nil
}

// History returns the session and its most recent messages, oldest first.
// limit below one falls back to the configured window.
func (r *Relay) History(ctx context.Context, sessionID string, limit int) (history.Session, []history.Message, error) {
	session, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return history.Session{}, nil, err
	}
	if limit < 1 {
		limit = r.settings.HistoryWindow
	}
	msgs, err := r.store.Recent(ctx, sessionID, limit)
	if err != nil {
		return history.Session{}, nil, err
	}
	return session, msgs, nil
}
