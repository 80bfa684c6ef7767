package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/fieldflow-ai/fieldflow/internal/field"
	"github.com/fieldflow-ai/fieldflow/internal/provider"
	"github.com/fieldflow-ai/fieldflow/internal/session"
)

// fakeProvider scripts the generative collaborator. Validation calls are
// recognized by their system prompt and consume verdicts in order (defaulting
// to "true"); conversation calls return a canned question and record their
// user prompts.
type fakeProvider struct {
	verdicts  []string
	reply     string
	err       error
	valCalls  int
	convCalls int
	prompts   []string
}

func (f *fakeProvider) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(systemPrompt, "validation agent") {
		f.valCalls++
		if len(f.verdicts) > 0 {
			v := f.verdicts[0]
			f.verdicts = f.verdicts[1:]
			return v, nil
		}
		return "true", nil
	}
	f.convCalls++
	f.prompts = append(f.prompts, userPrompt)
	if f.reply != "" {
		return f.reply, nil
	}
	return "Next question?", nil
}

func (f *fakeProvider) Name() string         { return "fake" }
func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func newTestAgent(t *testing.T, p provider.Provider, cfg field.Config) (*Agent, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	a := New(p, store, Options{Logger: slog.New(slog.DiscardHandler)})
	if err := a.ConfigureFields(cfg); err != nil {
		t.Fatalf("configure fields: %v", err)
	}
	return a, store
}

func TestBegin_InitializesSession(t *testing.T) {
	fake := &fakeProvider{reply: "Hi! What's your name?"}
	a, store := newTestAgent(t, fake, field.FromNames("name", "email"))

	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if started.SessionID == "" {
		t.Error("expected a generated session id")
	}
	if started.Message != "Hi! What's your name?" {
		t.Errorf("unexpected opening message %q", started.Message)
	}

	sess, err := store.Load(started.SessionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.CurrentIndex != 0 || sess.CurrentField != "name" {
		t.Errorf("pointer = (%d, %q), want (0, name)", sess.CurrentIndex, sess.CurrentField)
	}
	if len(sess.History) != 0 {
		t.Errorf("begin should persist empty history, got %d messages", len(sess.History))
	}
	if len(sess.Extracted) != 0 {
		t.Errorf("begin should persist empty extracted map, got %v", sess.Extracted)
	}
}

func TestBegin_KeepsSuppliedID(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name"))
	started, err := a.Begin(context.Background(), "my-session")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if started.SessionID != "my-session" {
		t.Errorf("expected supplied id, got %q", started.SessionID)
	}
}

func TestBegin_NoFieldsConfigured(t *testing.T) {
	store := session.NewMemoryStore()
	a := New(&fakeProvider{}, store, Options{Logger: slog.New(slog.DiscardHandler)})

	_, err := a.Begin(context.Background(), "")
	if !errors.Is(err, ErrNoFieldsConfigured) {
		t.Fatalf("expected ErrNoFieldsConfigured, got %v", err)
	}
	infos, _ := store.List()
	if len(infos) != 0 {
		t.Error("no session state may be persisted when begin fails")
	}
}

func TestBegin_EmptyConfigRejected(t *testing.T) {
	a, store := newTestAgent(t, &fakeProvider{}, field.FromNames("name"))
	if err := a.ConfigureFields(field.FromNames()); err != nil {
		t.Fatalf("empty config is not itself an error: %v", err)
	}
	if _, err := a.Begin(context.Background(), ""); !errors.Is(err, ErrNoFieldsConfigured) {
		t.Fatalf("expected ErrNoFieldsConfigured, got %v", err)
	}
	infos, _ := store.List()
	if len(infos) != 0 {
		t.Error("no session state may be persisted when begin fails")
	}
}

func TestBegin_ProviderErrorPersistsNothing(t *testing.T) {
	fake := &fakeProvider{err: fmt.Errorf("opening: %w", provider.ErrProvider)}
	a, store := newTestAgent(t, fake, field.FromNames("name"))

	_, err := a.Begin(context.Background(), "")
	if !errors.Is(err, provider.ErrProvider) {
		t.Fatalf("provider failure must surface, got %v", err)
	}
	infos, _ := store.List()
	if len(infos) != 0 {
		t.Error("provider failure during begin must not persist a session")
	}
}

func TestChat_InvalidAnswerKeepsState(t *testing.T) {
	// Scenario A: "no" for name; the semantic gate rejects it.
	fake := &fakeProvider{verdicts: []string{"false"}}
	a, store := newTestAgent(t, fake, field.FromNames("name", "email"))

	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	msg, err := a.Chat(context.Background(), started.SessionID, "no")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if msg.Role != session.RoleAssistant {
		t.Errorf("reply role = %q", msg.Role)
	}

	sess, _ := store.Load(started.SessionID)
	if len(sess.Extracted) != 0 {
		t.Errorf("invalid answer must not be stored, got %v", sess.Extracted)
	}
	if sess.CurrentIndex != 0 || sess.CurrentField != "name" {
		t.Errorf("invalid answer must not advance, pointer = (%d, %q)", sess.CurrentIndex, sess.CurrentField)
	}
	if len(sess.History) != 2 {
		t.Errorf("expected user+assistant in history, got %d messages", len(sess.History))
	}

	// The re-ask prompt carries the failure reason and the field name.
	last := fake.prompts[len(fake.prompts)-1]
	if !strings.Contains(last, "name") || !strings.Contains(last, semanticFailureMessage) {
		t.Errorf("re-ask prompt missing context: %q", last)
	}
}

func TestChat_ValidAnswerAdvances(t *testing.T) {
	// Scenario B: "Jane" for name passes the semantic gate.
	fake := &fakeProvider{}
	a, store := newTestAgent(t, fake, field.FromNames("name", "email"))

	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if _, err := a.Chat(context.Background(), started.SessionID, "Jane"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	sess, _ := store.Load(started.SessionID)
	if sess.CurrentIndex != 1 || sess.CurrentField != "email" {
		t.Errorf("pointer = (%d, %q), want (1, email)", sess.CurrentIndex, sess.CurrentField)
	}
	if sess.Extracted["name"] != "Jane" {
		t.Errorf("extracted = %v, want raw answer under 'name'", sess.Extracted)
	}

	// The next-question prompt references the prior answer for continuity.
	last := fake.prompts[len(fake.prompts)-1]
	if !strings.Contains(last, "Jane") || !strings.Contains(last, "email") {
		t.Errorf("next-question prompt missing context: %q", last)
	}
}

func TestChat_StructuralGateFailure(t *testing.T) {
	// Scenario C: semantic gate passes but the email rule fails.
	fake := &fakeProvider{}
	a, store := newTestAgent(t, fake, field.Structured(
		[]string{"email"},
		map[string][]string{"email": {"required", "email"}},
	))

	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	valCallsAfterBegin := fake.valCalls

	if _, err := a.Chat(context.Background(), started.SessionID, "not-an-email"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	sess, _ := store.Load(started.SessionID)
	if len(sess.Extracted) != 0 {
		t.Errorf("structurally invalid answer must not be stored, got %v", sess.Extracted)
	}
	if sess.CurrentIndex != 0 {
		t.Errorf("index must not advance, got %d", sess.CurrentIndex)
	}
	if fake.valCalls != valCallsAfterBegin+1 {
		t.Errorf("structural failure must not re-invoke the semantic gate, got %d validation calls", fake.valCalls)
	}
	last := fake.prompts[len(fake.prompts)-1]
	if !strings.Contains(last, "valid email address") {
		t.Errorf("re-ask prompt should carry the structural violation: %q", last)
	}
}

func TestChat_LastFieldCompletes(t *testing.T) {
	// Scenario D: after the last valid answer the fixed completion message
	// is returned without any further conversation provider call.
	fake := &fakeProvider{}
	a, store := newTestAgent(t, fake, field.FromNames("name", "email"))

	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := a.Chat(context.Background(), started.SessionID, "Jane"); err != nil {
		t.Fatalf("chat 1: %v", err)
	}
	convCallsBefore := fake.convCalls

	msg, err := a.Chat(context.Background(), started.SessionID, "jane@example.com")
	if err != nil {
		t.Fatalf("chat 2: %v", err)
	}
	if msg.Content != defaultCompletionMessage {
		t.Errorf("expected the fixed completion message, got %q", msg.Content)
	}
	if fake.convCalls != convCallsBefore {
		t.Error("completion must not invoke the provider")
	}

	sess, _ := store.Load(started.SessionID)
	if !sess.Completed {
		t.Error("session should be marked completed")
	}
	if sess.Extracted["email"] != "jane@example.com" {
		t.Errorf("extracted = %v", sess.Extracted)
	}

	res, err := a.Complete(started.SessionID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(res.Fields) != 2 || res.Fields["name"] != "Jane" || res.Fields["email"] != "jane@example.com" {
		t.Errorf("unexpected result fields: %v", res.Fields)
	}
}

func TestChat_AfterCompletionRepeatsCompletionMessage(t *testing.T) {
	fake := &fakeProvider{}
	a, _ := newTestAgent(t, fake, field.FromNames("name"))

	started, _ := a.Begin(context.Background(), "")
	if _, err := a.Chat(context.Background(), started.SessionID, "Jane"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	valCalls := fake.valCalls

	msg, err := a.Chat(context.Background(), started.SessionID, "anything else")
	if err != nil {
		t.Fatalf("chat after completion: %v", err)
	}
	if msg.Content != defaultCompletionMessage {
		t.Errorf("expected completion message again, got %q", msg.Content)
	}
	if fake.valCalls != valCalls {
		t.Error("chat after completion must not validate")
	}
}

func TestChat_UnknownSession(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name"))
	if _, err := a.Chat(context.Background(), "ghost", "hi"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestChat_EmptyIDResolvesCurrentSession(t *testing.T) {
	a, store := newTestAgent(t, &fakeProvider{}, field.FromNames("name", "email"))
	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := a.Chat(context.Background(), "", "Jane"); err != nil {
		t.Fatalf("chat with empty id: %v", err)
	}
	sess, _ := store.Load(started.SessionID)
	if sess.Extracted["name"] != "Jane" {
		t.Errorf("empty id should target the current session, extracted = %v", sess.Extracted)
	}
}

func TestChat_NoSessionAtAll(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name"))
	if _, err := a.Chat(context.Background(), "", "hi"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestChat_ProviderErrorSurfaces(t *testing.T) {
	fake := &fakeProvider{}
	a, _ := newTestAgent(t, fake, field.FromNames("name"))
	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	fake.err = fmt.Errorf("boom: %w", provider.ErrProvider)
	if _, err := a.Chat(context.Background(), started.SessionID, "Jane"); !errors.Is(err, provider.ErrProvider) {
		t.Fatalf("expected provider error to surface, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name", "email", "company"))
	started, err := a.Begin(context.Background(), "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	p, err := a.Progress(started.SessionID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.CurrentField != "name" || p.Index != 0 || p.Total != 3 {
		t.Errorf("unexpected progress %+v", p)
	}
	if p.Percent != 0 || p.IsComplete {
		t.Errorf("fresh session progress %+v", p)
	}

	// Idempotent without an intervening chat.
	p2, _ := a.Progress(started.SessionID)
	if p2 != p {
		t.Errorf("progress not idempotent: %+v vs %+v", p, p2)
	}

	if _, err := a.Chat(context.Background(), started.SessionID, "Jane"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	p3, _ := a.Progress(started.SessionID)
	if p3.Index != 1 || p3.Total != 3 || p3.Percent != 33.33 {
		t.Errorf("progress after one answer: %+v", p3)
	}
	if p3.IsComplete {
		t.Error("session is not complete after one of three answers")
	}
}

func TestProgress_CompleteOnlyAfterFinalAnswer(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name", "email"))
	started, _ := a.Begin(context.Background(), "")
	if _, err := a.Chat(context.Background(), started.SessionID, "Jane"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	// The last field is pending but unanswered.
	p, _ := a.Progress(started.SessionID)
	if p.IsComplete {
		t.Error("pending last field must not report complete")
	}

	if _, err := a.Chat(context.Background(), started.SessionID, "jane@example.com"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	p, _ = a.Progress(started.SessionID)
	if !p.IsComplete {
		t.Error("accepted final answer must report complete")
	}
}

func TestComplete_Summary(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name", "email"))
	started, _ := a.Begin(context.Background(), "")

	// Right after begin the history is empty: summary is all zero values.
	res, err := a.Complete(started.SessionID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Summary.StartedAt != nil || res.Summary.EndedAt != nil ||
		res.Summary.UserMessages != 0 || res.Summary.AssistantMessages != 0 {
		t.Errorf("empty-history summary should be zero, got %+v", res.Summary)
	}

	a.Chat(context.Background(), started.SessionID, "Jane")
	a.Chat(context.Background(), started.SessionID, "jane@example.com")

	res, err = a.Complete(started.SessionID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Summary.UserMessages != 2 || res.Summary.AssistantMessages != 2 {
		t.Errorf("summary counts = %+v", res.Summary)
	}
	if res.Summary.StartedAt == nil || res.Summary.EndedAt == nil {
		t.Fatal("summary timestamps missing")
	}
	if res.Summary.EndedAt.Before(*res.Summary.StartedAt) {
		t.Error("end timestamp precedes start")
	}
	if res.TotalMessages != 4 {
		t.Errorf("total messages = %d, want 4", res.TotalMessages)
	}
}

func TestHistory_AppendOnlyOrder(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name", "email"))
	started, _ := a.Begin(context.Background(), "")
	a.Chat(context.Background(), started.SessionID, "Jane")
	a.Chat(context.Background(), started.SessionID, "jane@example.com")

	history, err := a.History(started.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantRoles := []session.Role{session.RoleUser, session.RoleAssistant, session.RoleUser, session.RoleAssistant}
	if len(history) != len(wantRoles) {
		t.Fatalf("history length = %d, want %d", len(history), len(wantRoles))
	}
	for i, m := range history {
		if m.Role != wantRoles[i] {
			t.Errorf("history[%d].Role = %q, want %q", i, m.Role, wantRoles[i])
		}
		if m.SessionID != started.SessionID {
			t.Errorf("history[%d] has wrong session id %q", i, m.SessionID)
		}
	}
	if history[0].Content != "Jane" {
		t.Errorf("history[0] = %q", history[0].Content)
	}
}

func TestClear(t *testing.T) {
	a, _ := newTestAgent(t, &fakeProvider{}, field.FromNames("name"))
	started, _ := a.Begin(context.Background(), "")

	if err := a.Clear(started.SessionID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := a.Progress(started.SessionID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession after clear, got %v", err)
	}
	if err := a.Clear(started.SessionID); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("double clear should report ErrNoActiveSession, got %v", err)
	}
}

func TestReextract_MergesOverIncremental(t *testing.T) {
	fake := &fakeProvider{}
	a, _ := newTestAgent(t, fake, field.FromNames("name", "email"))
	started, _ := a.Begin(context.Background(), "")
	a.Chat(context.Background(), started.SessionID, "Jane")
	a.Chat(context.Background(), started.SessionID, "jane@example.com")

	fake.reply = `{"name": "Jane Doe", "email": "", "unknown": "x"}`
	merged, err := a.Reextract(context.Background(), started.SessionID)
	if err != nil {
		t.Fatalf("reextract: %v", err)
	}
	if merged["name"] != "Jane Doe" {
		t.Errorf("re-extracted value should win: %v", merged)
	}
	if merged["email"] != "jane@example.com" {
		t.Errorf("empty re-extracted value must not clobber incremental: %v", merged)
	}
	if _, ok := merged["unknown"]; ok {
		t.Errorf("undeclared keys must be dropped: %v", merged)
	}
}

func TestReextract_ParseFailureKeepsIncremental(t *testing.T) {
	fake := &fakeProvider{}
	a, _ := newTestAgent(t, fake, field.FromNames("name"))
	started, _ := a.Begin(context.Background(), "")
	a.Chat(context.Background(), started.SessionID, "Jane")

	fake.reply = "I could not produce JSON, sorry."
	merged, err := a.Reextract(context.Background(), started.SessionID)
	if err != nil {
		t.Fatalf("reextract: %v", err)
	}
	if merged["name"] != "Jane" {
		t.Errorf("parse failure must fall back to incremental values: %v", merged)
	}
}

func TestReextract_StripsCodeFences(t *testing.T) {
	fake := &fakeProvider{}
	a, _ := newTestAgent(t, fake, field.FromNames("name"))
	started, _ := a.Begin(context.Background(), "")
	a.Chat(context.Background(), started.SessionID, "Jane")

	fake.reply = "```json\n{\"name\": \"Jane D.\"}\n```"
	merged, err := a.Reextract(context.Background(), started.SessionID)
	if err != nil {
		t.Fatalf("reextract: %v", err)
	}
	if merged["name"] != "Jane D." {
		t.Errorf("fenced JSON should parse: %v", merged)
	}
}

func TestCustomCompletionMessage(t *testing.T) {
	store := session.NewMemoryStore()
	a := New(&fakeProvider{}, store, Options{
		Logger:            slog.New(slog.DiscardHandler),
		CompletionMessage: "All done, thanks!",
	})
	if err := a.ConfigureFields(field.FromNames("name")); err != nil {
		t.Fatalf("configure: %v", err)
	}
	started, _ := a.Begin(context.Background(), "")
	msg, err := a.Chat(context.Background(), started.SessionID, "Jane")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if msg.Content != "All done, thanks!" {
		t.Errorf("custom completion message not used: %q", msg.Content)
	}
}
