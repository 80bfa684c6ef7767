package agent

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/fieldflow-ai/fieldflow/internal/session"
)

// Progress is a read-only snapshot of how far a session has advanced.
type Progress struct {
	CurrentField string
	Index        int
	Total        int
	Percent      float64
	IsComplete   bool
}

// Summary describes the conversation at completion time. All fields are zero
// when the history is empty.
type Summary struct {
	StartedAt         *time.Time
	EndedAt           *time.Time
	UserMessages      int
	AssistantMessages int
}

// Result is the assembled output of a completed (or in-flight) session: the
// collected values plus a conversation summary. Values are the literal
// accepted raw answers; no coercion happens here.
type Result struct {
	SessionID     string
	Fields        map[string]string
	Summary       Summary
	TotalMessages int
	History       []session.Message
}

// Progress reports the session's current field, index, total, percentage
// (two decimals), and completion state.
func (a *Agent) Progress(sessionID string) (Progress, error) {
	id, err := a.resolveID(sessionID)
	if err != nil {
		return Progress{}, err
	}
	sess, err := a.loadSession(id)
	if err != nil {
		return Progress{}, err
	}

	total := len(sess.Fields)
	percent := 0.0
	if total > 0 {
		percent = round2(float64(sess.CurrentIndex) / float64(total) * 100)
	}
	return Progress{
		CurrentField: sess.CurrentField,
		Index:        sess.CurrentIndex,
		Total:        total,
		Percent:      percent,
		IsComplete:   sess.Completed,
	}, nil
}

// Complete assembles the final result from accumulated per-turn assignments.
// It is a pure read: no provider call is made.
func (a *Agent) Complete(sessionID string) (Result, error) {
	id, err := a.resolveID(sessionID)
	if err != nil {
		return Result{}, err
	}
	sess, err := a.loadSession(id)
	if err != nil {
		return Result{}, err
	}
	return assemble(sess), nil
}

// assemble builds the Result for a session.
func assemble(sess *session.Session) Result {
	fields := make(map[string]string, len(sess.Extracted))
	for k, v := range sess.Extracted {
		fields[k] = v
	}

	var summary Summary
	if n := len(sess.History); n > 0 {
		first := sess.History[0].Timestamp
		last := sess.History[n-1].Timestamp
		summary.StartedAt = &first
		summary.EndedAt = &last
		for _, m := range sess.History {
			switch m.Role {
			case session.RoleUser:
				summary.UserMessages++
			case session.RoleAssistant:
				summary.AssistantMessages++
			}
		}
	}

	return Result{
		SessionID:     sess.ID,
		Fields:        fields,
		Summary:       summary,
		TotalMessages: len(sess.History),
		History:       sess.History,
	}
}

// Reextract asks the provider to re-derive every field from the full
// transcript as JSON and layers the parsed values over the incrementally
// collected map. It never replaces the incremental values: a missing or
// empty re-extracted value, or an unparsable reply, leaves them intact.
func (a *Agent) Reextract(ctx context.Context, sessionID string) (map[string]string, error) {
	id, err := a.resolveID(sessionID)
	if err != nil {
		return nil, err
	}

	lock := a.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := a.loadSession(id)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(sess.Extracted))
	for k, v := range sess.Extracted {
		merged[k] = v
	}

	var transcript strings.Builder
	for _, m := range sess.History {
		transcript.WriteString(string(m.Role))
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}

	reply, err := a.provider.Generate(ctx,
		extractionPrompt(sess.Fields),
		transcript.String())
	if err != nil {
		return nil, err
	}

	parsed := make(map[string]string)
	if err := json.Unmarshal([]byte(stripJSONFences(reply)), &parsed); err != nil {
		a.logger.Warn("re-extraction reply was not valid JSON; keeping incremental values",
			"session_id", id, "error", err)
		return merged, nil
	}

	declared := make(map[string]bool, len(sess.Fields))
	for _, f := range sess.Fields {
		declared[f.Name] = true
	}
	for k, v := range parsed {
		if declared[k] && strings.TrimSpace(v) != "" {
			merged[k] = v
		}
	}
	return merged, nil
}

// stripJSONFences removes a surrounding markdown code fence, which models
// often add despite instructions.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
