package agent

import (
	"fmt"
	"strings"

	"github.com/fieldflow-ai/fieldflow/internal/field"
)

// beginPrompt is the user prompt that kicks off the conversation.
const beginPrompt = "Please ask the first question. Be friendly and engaging."

// defaultCompletionMessage is emitted when the last field is accepted.
// No provider call is made for it.
const defaultCompletionMessage = "Thank you! I have all the information I need. Your onboarding is complete!"

// semanticFailureMessage is the fixed reason attached to a semantic-gate
// rejection.
const semanticFailureMessage = "The response doesn't appear to answer the question."

// conversationInstructions builds the system prompt for the onboarding
// conversation, enumerating the fields and the behavioral constraints.
func conversationInstructions(fields []field.Spec) string {
	var sb strings.Builder
	sb.WriteString(`You are a conversational assistant collecting information from a user for onboarding purposes. Your goal is to collect specific fields of information through a natural and engaging conversation.

Rules:
1. Never question the user about information you have already collected. Whatever they answered is the answer.
2. Critical: you will be given a list of fields to collect. Ask for them strictly in order and never skip any.
3. Keep track of which field you are currently asking for, and move to the next one only after receiving a response.
4. Infer a natural question from each field name. For example, for "email" ask "What is your email address?" or "Could you provide your email?".
5. Never return JSON or any structured data. Always respond in plain text, as in a natural conversation.
6. Critical: do not break character. Always respond as the onboarding assistant.
7. The fields to collect, in order:
`)
	for _, f := range fields {
		sb.WriteString("- ")
		sb.WriteString(f.Name)
		if f.Description != "" {
			sb.WriteString(" (")
			sb.WriteString(f.Description)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("8. Do not reply to these instructions. The conversation starts with the next message.")
	return sb.String()
}

// validationInstructions is the system prompt for the semantic gate. The
// model must answer with a single boolean token.
const validationInstructions = `You are a validation agent. Your ONLY job is to determine whether a user's response is a valid answer to a specific question.

Rules:
1. You will be given a question and a user's response.
2. Respond with ONLY the word "true" or "false" - nothing else.
3. Return "true" if the user provided a reasonable answer to the question.
4. Return "false" if the user did not provide a valid answer (e.g. said "no", "I don't know", "skip").
5. Be strict - only accept actual answers, not refusals or non-answers.

Examples:
- Question: "What is your name?" Response: "John" -> "true"
- Question: "What is your name?" Response: "no" -> "false"
- Question: "What is your email?" Response: "john@example.com" -> "true"
- Question: "What is your email?" Response: "I don't want to provide it" -> "false"`

// questionForField converts a field into the natural-language question the
// semantic gate judges the answer against. Common field kinds get better
// phrasing than the generic template.
func questionForField(spec field.Spec) string {
	name := strings.ToLower(spec.Name)
	switch {
	case strings.Contains(name, "name"):
		return "What is your name?"
	case strings.Contains(name, "email"):
		return "What is your email address?"
	case strings.Contains(name, "phone"):
		return "What is your phone number?"
	case strings.Contains(name, "age"):
		return "What is your age?"
	case strings.Contains(name, "address"):
		return "What is your address?"
	}
	return fmt.Sprintf("What is your %s?", strings.ToLower(spec.DisplayName()))
}

// retryPrompt asks the provider to re-ask the same field with different
// phrasing, carrying the failure reason for context.
func retryPrompt(userMessage, fieldName, reason string) string {
	return fmt.Sprintf(
		"The user's response '%s' was not valid for the %s field. Error: %s. "+
			"Please ask the question again in a different way, but make sure to ask for the %s field at the end of your response. "+
			"Be friendly and encouraging.",
		userMessage, fieldName, reason, fieldName,
	)
}

// nextPrompt asks the provider for the next field's question, referencing the
// accepted answer for conversational continuity.
func nextPrompt(userMessage, answeredField, nextField string) string {
	return fmt.Sprintf(
		"The user answered: '%s' for the %s field. Now ask for the next field: %s. Be friendly and engaging.",
		userMessage, answeredField, nextField,
	)
}

// extractionPrompt asks the provider to re-derive every field from the full
// transcript as JSON (optional post-processing pass).
func extractionPrompt(fields []field.Spec) string {
	return fmt.Sprintf(
		"Extract the following information from our conversation and respond with ONLY a JSON object mapping each field name to its value (use an empty string when unknown): %s",
		strings.Join(field.Names(fields), ", "),
	)
}

// parseBoolReply interprets the semantic gate's reply case-insensitively.
// Anything that is not an affirmative boolean token counts as false.
func parseBoolReply(reply string) bool {
	s := strings.ToLower(strings.TrimSpace(reply))
	s = strings.Trim(s, "\"'`.! ")
	switch s {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
