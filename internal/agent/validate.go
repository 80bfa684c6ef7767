package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldflow-ai/fieldflow/internal/field"
	"github.com/fieldflow-ai/fieldflow/internal/rules"
)

// Outcome is the verdict of the dual validation pipeline. An invalid outcome
// carries exactly one kind of failure reason: SemanticMessage when the AI
// gate rejected the answer, StructuralErrors when the rule engine did.
type Outcome struct {
	Valid            bool
	SemanticMessage  string
	StructuralErrors []string
}

// Reason returns the human-readable failure reason, or "" for valid outcomes.
func (o Outcome) Reason() string {
	if o.SemanticMessage != "" {
		return o.SemanticMessage
	}
	if len(o.StructuralErrors) > 0 {
		return strings.Join(o.StructuralErrors, ", ")
	}
	return ""
}

// validate runs both gates in fixed order: the semantic (AI) gate first, then
// the structural rule gate when the field carries rules. A semantic failure
// short-circuits the structural gate. The returned error is non-nil only for
// provider failures; a rejected answer is a normal Outcome, not an error.
func (a *Agent) validate(ctx context.Context, spec field.Spec, answer string) (Outcome, error) {
	question := questionForField(spec)
	prompt := fmt.Sprintf("Question: %s\nUser Response: %s", question, answer)

	reply, err := a.provider.Generate(ctx, validationInstructions, prompt)
	if err != nil {
		return Outcome{}, err
	}
	if !parseBoolReply(reply) {
		a.logger.Debug("semantic gate rejected answer",
			"field", spec.Name, "reply", strings.TrimSpace(reply))
		return Outcome{SemanticMessage: semanticFailureMessage}, nil
	}

	if spec.HasRules() {
		res := rules.Check(spec.Name, answer, spec.Rules)
		if !res.Valid {
			a.logger.Debug("structural gate rejected answer",
				"field", spec.Name, "violations", len(res.Errors))
			return Outcome{StructuralErrors: res.Errors}, nil
		}
	}

	return Outcome{Valid: true}, nil
}
