package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"registrar/internal/event/models"
	dErrors "registrar/pkg/domain-errors"
)

// Field-level failure messages. Format failures are reported distinctly from
// permitted-range failures so clients can tell "02-1-2024" apart from a
// date that parses but is not allowed.
const (
	msgRequired      = "Required"
	msgUnknownField  = "Field is not part of the form"
	msgUncorrectable = "Field cannot be corrected"
	msgInvalidDate   = "Invalid date format, expected yyyy-MM-dd"
	msgFutureDate    = "Date must not be in the future"
	msgInvalidEmail  = "Invalid email address"
	msgNotText       = "Expected a text value"
	msgNotNumber     = "Expected a numeric value"
	msgNotBool       = "Expected a boolean value"
	msgTooLong       = "Value exceeds maximum length"
	msgNotPermitted  = "Value is not permitted"
)

// Options tune a validation pass.
type Options struct {
	// Now anchors date-range checks (a date of birth in the future is
	// rejected relative to server time).
	Now time.Time
	// SkipRequired relaxes requiredness for incomplete submissions
	// (NOTIFY). Present values are still fully checked.
	SkipRequired bool
}

// Validate checks a declaration against the form and returns every offending
// field, never just the first. Hidden fields are skipped entirely: a field's
// requiredness is evaluated only when its visibility conditions are
// satisfied by the declaration under validation.
func (f *Form) Validate(decl models.Declaration, opts Options) []dErrors.FieldError {
	var errs []dErrors.FieldError

	for _, field := range f.Fields {
		if !field.Visible(decl) {
			continue
		}
		value, present := decl[field.ID]
		if !present || value == nil || value == "" {
			if field.Required && !opts.SkipRequired {
				errs = append(errs, dErrors.FieldError{Field: field.ID, Message: msgRequired})
			}
			continue
		}
		if msg := field.check(value, opts); msg != "" {
			errs = append(errs, dErrors.FieldError{Field: field.ID, Message: msg})
		}
	}

	errs = append(errs, f.unknownFields(decl)...)
	sortFieldErrors(errs)
	return errs
}

// ValidateDelta checks a correction delta. Requiredness is evaluated against
// the combined (existing + delta) declaration, so fields hidden by the
// combined state raise no errors even when the delta leaves them absent.
// Fields flagged uncorrectable are rejected by name regardless of the rest
// of the delta's validity.
func (f *Form) ValidateDelta(existing, delta models.Declaration, opts Options) []dErrors.FieldError {
	combined := existing.Merge(delta)
	errs := f.Validate(combined, opts)

	for fieldID := range delta {
		field, ok := f.Find(fieldID)
		if !ok {
			continue // already reported as unknown by Validate
		}
		if field.Uncorrectable {
			errs = append(errs, dErrors.FieldError{Field: fieldID, Message: msgUncorrectable})
		}
	}
	sortFieldErrors(errs)
	return errs
}

func (f *Form) unknownFields(decl models.Declaration) []dErrors.FieldError {
	var errs []dErrors.FieldError
	for fieldID := range decl {
		if _, ok := f.Find(fieldID); !ok {
			errs = append(errs, dErrors.FieldError{Field: fieldID, Message: msgUnknownField})
		}
	}
	return errs
}

func (field Field) check(value any, opts Options) string {
	switch field.Type {
	case FieldText:
		s, ok := value.(string)
		if !ok {
			return msgNotText
		}
		if field.MaxLength > 0 && len(s) > field.MaxLength {
			return msgTooLong
		}
	case FieldEmail:
		s, ok := value.(string)
		if !ok {
			return msgNotText
		}
		if !validEmail(s) {
			return msgInvalidEmail
		}
	case FieldDate:
		s, ok := value.(string)
		if !ok {
			return msgInvalidDate
		}
		parsed, err := parseFormDate(s)
		if err != nil {
			return msgInvalidDate
		}
		if !opts.Now.IsZero() && parsed.After(opts.Now) {
			return msgFutureDate
		}
	case FieldNumber:
		switch value.(type) {
		case int, int64, float64:
		default:
			return msgNotNumber
		}
	case FieldCheckbox:
		if _, ok := value.(bool); !ok {
			return msgNotBool
		}
	case FieldSelect:
		s, ok := value.(string)
		if !ok {
			return msgNotText
		}
		for _, option := range field.Options {
			if s == option {
				return ""
			}
		}
		return msgNotPermitted
	}
	return ""
}

// parseFormDate accepts strictly formatted yyyy-MM-dd values. time.Parse
// alone accepts "2024-2-1"; the length and digit checks keep partial dates
// like "02-1-2024" in the format-error bucket.
func parseFormDate(s string) (time.Time, error) {
	if len(s) != len("2006-01-02") {
		return time.Time{}, fmt.Errorf("date %q is not yyyy-MM-dd", s)
	}
	return time.Parse("2006-01-02", s)
}

func validEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	return !strings.ContainsAny(s, " \t")
}

func sortFieldErrors(errs []dErrors.FieldError) {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Field != errs[j].Field {
			return errs[i].Field < errs[j].Field
		}
		return errs[i].Message < errs[j].Message
	})
}
