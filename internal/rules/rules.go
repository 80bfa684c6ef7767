// Package rules evaluates a value against a declarative rule set and reports
// pass/fail with human-readable messages. Rule names follow the common
// framework vocabulary: required, nullable, string, email, url, numeric,
// integer, boolean, alpha, alphanum, date, min:N, max:N, in:a,b,c, regex:pat.
//
// Format and character-class primitives delegate to go-playground/validator;
// the rest are evaluated directly. Empty input only trips the required rule;
// all other rules apply to present values.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Result is the outcome of checking one field/value pair.
type Result struct {
	Valid  bool
	Errors []string
}

var validate = validator.New()

// varTags maps rule names to the validator tag evaluating them.
var varTags = map[string]string{
	"email":    "email",
	"url":      "url",
	"alpha":    "alpha",
	"alphanum": "alphanum",
}

// Check evaluates value against ruleSet for the named field.
// Violation messages are collected in rule order; an empty rule set passes.
func Check(fieldName, value string, ruleSet []string) Result {
	trimmed := strings.TrimSpace(value)

	if trimmed == "" {
		for _, rule := range ruleSet {
			if name, _ := splitRule(rule); name == "required" {
				return failure(fmt.Sprintf("The %s field is required.", fieldName))
			}
		}
		return Result{Valid: true}
	}

	// min/max bound the numeric value when the rule set declares the field
	// numeric, otherwise they bound the string length.
	numericField := false
	for _, rule := range ruleSet {
		if name, _ := splitRule(rule); name == "numeric" || name == "integer" {
			numericField = true
		}
	}

	var errs []string
	for _, rule := range ruleSet {
		name, arg := splitRule(rule)
		if msg := checkRule(fieldName, trimmed, name, arg, numericField); msg != "" {
			errs = append(errs, msg)
		}
	}

	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}
	return Result{Valid: true}
}

func checkRule(fieldName, value, name, arg string, numericField bool) string {
	switch name {
	case "required", "nullable", "string":
		return ""

	case "email", "url", "alpha", "alphanum":
		if err := validate.Var(value, varTags[name]); err != nil {
			return fmt.Sprintf("The %s field must be a valid %s.", fieldName, ruleNoun(name))
		}
		return ""

	case "numeric":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Sprintf("The %s field must be a number.", fieldName)
		}
		return ""

	case "integer":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Sprintf("The %s field must be an integer.", fieldName)
		}
		return ""

	case "boolean":
		if _, err := strconv.ParseBool(strings.ToLower(value)); err != nil {
			return fmt.Sprintf("The %s field must be true or false.", fieldName)
		}
		return ""

	case "date":
		if _, err := time.Parse(time.RFC3339, value); err == nil {
			return ""
		}
		if _, err := time.Parse("2006-01-02", value); err == nil {
			return ""
		}
		return fmt.Sprintf("The %s field must be a valid date.", fieldName)

	case "min":
		return checkBound(fieldName, value, arg, numericField, true)

	case "max":
		return checkBound(fieldName, value, arg, numericField, false)

	case "in":
		allowed := strings.Split(arg, ",")
		for _, a := range allowed {
			if strings.EqualFold(value, strings.TrimSpace(a)) {
				return ""
			}
		}
		return fmt.Sprintf("The %s field must be one of: %s.", fieldName, arg)

	case "regex":
		re, err := regexp.Compile(arg)
		if err != nil {
			return fmt.Sprintf("The %s field has an invalid regex rule: %v.", fieldName, err)
		}
		if !re.MatchString(value) {
			return fmt.Sprintf("The %s field format is invalid.", fieldName)
		}
		return ""

	default:
		return fmt.Sprintf("The %s field has an unknown validation rule %q.", fieldName, name)
	}
}

// checkBound enforces min:N / max:N against either the numeric value or the
// string length, matching the framework convention the rule names come from.
func checkBound(fieldName, value, arg string, numericField, isMin bool) string {
	limit, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Sprintf("The %s field has an invalid bound rule argument %q.", fieldName, arg)
	}

	if numericField {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			// The numeric/integer rule itself reports the parse failure.
			return ""
		}
		if isMin && n < limit {
			return fmt.Sprintf("The %s field must be at least %s.", fieldName, arg)
		}
		if !isMin && n > limit {
			return fmt.Sprintf("The %s field must not be greater than %s.", fieldName, arg)
		}
		return ""
	}

	length := float64(len([]rune(value)))
	if isMin && length < limit {
		return fmt.Sprintf("The %s field must be at least %s characters.", fieldName, arg)
	}
	if !isMin && length > limit {
		return fmt.Sprintf("The %s field must not be greater than %s characters.", fieldName, arg)
	}
	return ""
}

func splitRule(rule string) (name, arg string) {
	parts := strings.SplitN(rule, ":", 2)
	name = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		arg = parts[1]
	}
	return name, arg
}

func ruleNoun(name string) string {
	switch name {
	case "email":
		return "email address"
	case "url":
		return "URL"
	case "alpha":
		return "alphabetic value"
	case "alphanum":
		return "alphanumeric value"
	}
	return name
}

func failure(msgs ...string) Result {
	return Result{Valid: false, Errors: msgs}
}
