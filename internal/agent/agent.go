// Package agent drives the turn-based onboarding conversation: it normalizes
// the configured fields, opens sessions, validates each answer through the
// semantic and structural gates, and decides retry vs. advance vs. completion
// one field at a time.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fieldflow-ai/fieldflow/internal/field"
	"github.com/fieldflow-ai/fieldflow/internal/provider"
	"github.com/fieldflow-ai/fieldflow/internal/session"
)

// Options tunes an Agent. The zero value uses defaults.
type Options struct {
	// Logger receives structured debug/info events. Defaults to slog.Default().
	Logger *slog.Logger

	// CompletionMessage overrides the fixed message emitted when the last
	// field is accepted.
	CompletionMessage string
}

// Agent is the conversation orchestrator. It owns the session for the
// lifetime of each id; the store only keeps the durable representation.
// All dependencies are injected; there is no process-wide state.
type Agent struct {
	provider   provider.Provider
	store      session.Store
	logger     *slog.Logger
	completion string

	mu      sync.Mutex // guards specs, current, locks
	specs   []field.Spec
	current string // id of the most recently begun session
	locks   map[string]*sync.Mutex
}

// New creates an Agent over the given provider and session store.
func New(p provider.Provider, store session.Store, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	completion := opts.CompletionMessage
	if completion == "" {
		completion = defaultCompletionMessage
	}
	return &Agent{
		provider:   p,
		store:      store,
		logger:     logger,
		completion: completion,
		locks:      make(map[string]*sync.Mutex),
	}
}

// ConfigureFields normalizes cfg and installs it as the field list for
// subsequently begun sessions. Sessions already begun keep their own copy.
func (a *Agent) ConfigureFields(cfg field.Config) error {
	specs, err := field.Normalize(cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.specs = specs
	a.mu.Unlock()
	return nil
}

// Started is the result of Begin.
type Started struct {
	SessionID string
	Message   string
}

// Begin opens a new session and returns its id along with the opening
// question. A missing field configuration fails with ErrNoFieldsConfigured
// before any state is persisted; a provider failure is surfaced the same way.
// An empty sessionID gets a generated one.
func (a *Agent) Begin(ctx context.Context, sessionID string) (Started, error) {
	a.mu.Lock()
	specs := a.specs
	a.mu.Unlock()
	if len(specs) == 0 {
		return Started{}, ErrNoFieldsConfigured
	}

	sess := session.New(sessionID, specs)

	lock := a.lockFor(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	first, err := a.provider.Generate(ctx, conversationInstructions(specs), beginPrompt)
	if err != nil {
		return Started{}, err
	}

	if err := a.store.Save(sess); err != nil {
		return Started{}, fmt.Errorf("persist session: %w", err)
	}

	a.mu.Lock()
	a.current = sess.ID
	a.mu.Unlock()

	a.logger.Info("onboarding session started",
		"session_id", sess.ID, "fields", len(specs), "provider", a.provider.Name())
	return Started{SessionID: sess.ID, Message: first}, nil
}

// Chat consumes one user message for the session and returns the assistant's
// reply. An invalid answer keeps the machine on the same field and re-asks
// it; a valid answer stores the raw text and either advances to the next
// field or completes the conversation with the fixed completion message.
func (a *Agent) Chat(ctx context.Context, sessionID, message string) (session.Message, error) {
	id, err := a.resolveID(sessionID)
	if err != nil {
		return session.Message{}, err
	}

	lock := a.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := a.loadSession(id)
	if err != nil {
		return session.Message{}, err
	}

	sess.Append(session.RoleUser, message)
	// Persist receipt of the user message before any provider round trip, so
	// a failed turn can be retried without losing history.
	if err := a.store.Save(sess); err != nil {
		return session.Message{}, fmt.Errorf("persist session: %w", err)
	}

	if sess.Completed {
		return a.reply(sess, a.completion)
	}

	spec, ok := sess.Pending()
	if !ok {
		return session.Message{}, fmt.Errorf("session %s has no pending field", id)
	}

	outcome, err := a.validate(ctx, spec, message)
	if err != nil {
		return session.Message{}, err
	}

	if !outcome.Valid {
		text, err := a.provider.Generate(ctx,
			conversationInstructions(sess.Fields),
			retryPrompt(message, spec.Name, outcome.Reason()))
		if err != nil {
			return session.Message{}, err
		}
		// The answer is not stored and the index does not move.
		return a.reply(sess, text)
	}

	sess.Extracted[spec.Name] = message

	if sess.CurrentIndex+1 < len(sess.Fields) {
		sess.Advance()
		next := sess.Fields[sess.CurrentIndex]
		text, err := a.provider.Generate(ctx,
			conversationInstructions(sess.Fields),
			nextPrompt(message, spec.Name, next.Name))
		if err != nil {
			return session.Message{}, err
		}
		return a.reply(sess, text)
	}

	// Last field accepted: complete without a provider call.
	sess.Completed = true
	a.logger.Info("onboarding session complete",
		"session_id", sess.ID, "fields", len(sess.Fields))
	return a.reply(sess, a.completion)
}

// reply appends the assistant message, persists the session, and returns it.
func (a *Agent) reply(sess *session.Session, text string) (session.Message, error) {
	msg := sess.Append(session.RoleAssistant, text)
	if err := a.store.Save(sess); err != nil {
		return session.Message{}, fmt.Errorf("persist session: %w", err)
	}
	return msg, nil
}

// History returns the session's conversation history in order.
func (a *Agent) History(sessionID string) ([]session.Message, error) {
	id, err := a.resolveID(sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := a.loadSession(id)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// Clear destroys the session's state.
func (a *Agent) Clear(sessionID string) error {
	id, err := a.resolveID(sessionID)
	if err != nil {
		return err
	}
	if err := a.store.Delete(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoActiveSession, id)
		}
		return err
	}
	a.mu.Lock()
	if a.current == id {
		a.current = ""
	}
	delete(a.locks, id)
	a.mu.Unlock()
	return nil
}

// resolveID maps an empty session id to the most recently begun session.
func (a *Agent) resolveID(sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == "" {
		return "", ErrNoActiveSession
	}
	return a.current, nil
}

func (a *Agent) loadSession(id string) (*session.Session, error) {
	sess, err := a.store.Load(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoActiveSession, id)
		}
		return nil, err
	}
	return sess, nil
}

// lockFor returns the per-session mutex, creating it on first use. The lock
// is held for the duration of Begin/Chat/Complete so concurrent calls against
// one session id serialize instead of corrupting the index/field pair.
func (a *Agent) lockFor(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	a.locks[id] = l
	return l
}
