package models

import (
	"slices"

	"github.com/pkg/errors"
)

// Predicate decides whether a label set is alarm-worthy.
type Predicate func(labels []string) bool

// Fallback is the judgment applied to models missing from the judge table.
type Fallback string

const (
	// FallbackAnyLabel treats any returned label as positive.
	FallbackAnyLabel Fallback = "any_label"
	// FallbackNever never alarms for unknown models.
	FallbackNever Fallback = "never"
)

// ParseFallback validates a configured fallback. An empty string selects
// FallbackAnyLabel.
func ParseFallback(s string) (Fallback, error) {
	switch f := Fallback(s); f {
	case "":
		return FallbackAnyLabel, nil
	case FallbackAnyLabel, FallbackNever:
		return f, nil
	default:
		return "", errors.Errorf("unknown judge fallback %q", s)
	}
}

// AnyOf is positive when labels contain at least one of wanted.
func AnyOf(wanted ...string) Predicate {
	return func(labels []string) bool {
		for _, w := range wanted {
			if slices.Contains(labels, w) {
				return true
			}
		}
		return false
	}
}

var judges = map[string]Predicate{
	"fire.pt":    AnyOf("Fire"),
	"smoking.pt": AnyOf("smoking"),
	"mask.pt":    AnyOf("without_mask", "mask_weared_incorrect"),
	"fall.pt":    AnyOf("Fall-Detected"),
	"helmet.pt":  AnyOf("without safety-helmet"),
	"vest.pt":    AnyOf("others"),
}

// Judge returns the predicate for model, or the fallback's predicate when the
// model is not in the table.
func Judge(model string, fallback Fallback) Predicate {
	if p, ok := judges[model]; ok {
		return p
	}
	if fallback == FallbackNever {
		return func([]string) bool { return false }
	}
	return func(labels []string) bool { return len(labels) > 0 }
}

// Judged reports whether model has an explicit entry in the judge table.
func Judged(model string) bool {
	_, ok := judges[model]
	return ok
}
