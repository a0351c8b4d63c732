package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ErrValidation is the sentinel wrapped by every *ValidationError.
var ErrValidation = errors.New("schema: validation failed")

// FieldError describes why one field was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field failure found for one write.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		msgs[i] = fe.Field + " " + fe.Message
	}
	return fmt.Sprintf("%s: invalid %s: %s", ErrValidation.Error(), e.Entity, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(f Field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: f.JSONName(), Message: msg})
}

// Validate checks values (keyed by column name) against the entity and
// replaces each value with its normalized logical form.
//
// With partial false every required field must be present and non-empty.
// With partial true only the supplied keys are checked and immutable fields
// are rejected. Unknown keys are always rejected.
func (e *Entity) Validate(values map[string]any, partial bool) error {
	verr := &ValidationError{Entity: e.Name}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !e.HasColumn(k) {
			verr.Fields = append(verr.Fields, FieldError{Field: k, Message: "is not a known field"})
		}
	}

	for _, f := range e.Fields {
		v, present := values[f.Name]

		if partial {
			if !present {
				continue
			}
			if f.Immutable {
				verr.add(f, "cannot be changed")
				continue
			}
		}

		norm, err := Normalize(f, v)
		if err != nil {
			verr.add(f, "must be a valid "+string(f.Type))
			continue
		}
		if present {
			values[f.Name] = norm
		}

		if norm == nil || norm == "" {
			if f.Required && !f.AutoNow {
				verr.add(f, "is required")
			}
			continue
		}

		if msg := checkConstraints(f, norm); msg != "" {
			verr.add(f, msg)
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func checkConstraints(f Field, v any) string {
	switch f.Type {
	case String:
		if f.MaxLen > 0 && utf8.RuneCountInString(v.(string)) > f.MaxLen {
			return fmt.Sprintf("must be at most %d characters", f.MaxLen)
		}
	case Enum:
		s := v.(string)
		if !f.HasValue(s) {
			return "must be one of " + strings.Join(f.Values, ", ")
		}
	case Integer:
		if f.Range != nil {
			d := decimal.NewFromInt(v.(int64))
			if d.LessThan(f.Range.Min) || d.GreaterThan(f.Range.Max) {
				return fmt.Sprintf("must be between %s and %s", f.Range.Min, f.Range.Max)
			}
		}
	case Decimal:
		d := v.(decimal.Decimal)
		if f.Range != nil && (d.LessThan(f.Range.Min) || d.GreaterThan(f.Range.Max)) {
			return fmt.Sprintf("must be between %s and %s", f.Range.Min, f.Range.Max)
		}
		if f.Precision > 0 {
			limit := decimal.New(1, f.Precision-f.Scale)
			if d.Round(f.Scale).Abs().GreaterThanOrEqual(limit) {
				return fmt.Sprintf("must have at most %d digits before the decimal point", f.Precision-f.Scale)
			}
		}
	}
	return ""
}
