// Package validate checks raw answers against their question's input
// kind.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/dkarpov/fitbot/internal/model"
)

// Validation error texts surfaced to the respondent.
const (
	ErrNotEmail      = "Input is not a valid email"
	ErrNotNumber     = "Input is not a valid number"
	ErrNotBoolean    = "Input is not a boolean"
	ErrNotAnOption   = "Input must be one of the options"
	ErrNoOptions     = "This question has no options to choose from"
	ErrExpectPicture = "Please send a picture"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// Answer dispatches the given raw input to the rule for the question's
// input kind. The option set is question-specific and must be supplied
// by the caller for options questions; it is ignored for every other
// kind. The result collects every applicable error message.
func Answer(kind model.InputKind, input string, options []string) model.ValidationResult {
	switch kind {
	case model.KindText:
		return valid()
	case model.KindEmail:
		return email(input)
	case model.KindNumber:
		return number(input)
	case model.KindBoolean:
		return boolean(input)
	case model.KindOptions:
		return oneOf(input, options)
	case model.KindPicture:
		return picture(input)
	default:
		return invalid(fmt.Sprintf("Unsupported input kind %q", kind))
	}
}

func valid() model.ValidationResult {
	return model.ValidationResult{IsValid: true}
}

func invalid(errs ...string) model.ValidationResult {
	return model.ValidationResult{Errors: errs}
}

func email(input string) model.ValidationResult {
	if !emailRe.MatchString(input) {
		return invalid(ErrNotEmail)
	}
	return valid()
}

// NormalizeNumber strips spaces and converts a decimal comma to a
// decimal point so that locally formatted numbers like "1 234,5" parse.
func NormalizeNumber(input string) string {
	return strings.Replace(strings.ReplaceAll(input, " ", ""), ",", ".", 1)
}

func number(input string) model.ValidationResult {
	f, err := strconv.ParseFloat(NormalizeNumber(input), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return invalid(ErrNotNumber)
	}
	return valid()
}

func boolean(input string) model.ValidationResult {
	if input != model.BoolTrue && input != model.BoolFalse {
		return invalid(ErrNotBoolean)
	}
	return valid()
}

func oneOf(input string, options []string) model.ValidationResult {
	var errs []string
	if len(options) == 0 {
		errs = append(errs, ErrNoOptions)
	}
	if !slices.Contains(options, input) {
		errs = append(errs, ErrNotAnOption)
	}
	if len(errs) > 0 {
		return invalid(errs...)
	}
	return valid()
}

// picture only ever sees stray text replies to a picture question; real
// image receipt bypasses text validation entirely.
func picture(input string) model.ValidationResult {
	if input != "" {
		return invalid(ErrExpectPicture)
	}
	return valid()
}
