// Package validation checks declaration payloads against a declarative form
// configuration. A form is a tree of field configs with visibility
// conditions, requiredness, and per-type validators, evaluated by a generic
// interpreter so new registration forms are configuration, not code.
package validation

import (
	"registrar/internal/event/models"
)

// FieldType selects the format rules applied to a present value.
type FieldType string

const (
	FieldText     FieldType = "TEXT"
	FieldDate     FieldType = "DATE"
	FieldNumber   FieldType = "NUMBER"
	FieldEmail    FieldType = "EMAIL"
	FieldCheckbox FieldType = "CHECKBOX"
	FieldSelect   FieldType = "SELECT"
)

// Matcher is one clause of a visibility condition: the named field must
// carry the expected value. A nil Equals means the field only has to be
// present.
type Matcher struct {
	Field  string
	Equals any
}

func (m Matcher) satisfied(decl models.Declaration) bool {
	value, present := decl[m.Field]
	if !present {
		return false
	}
	if m.Equals == nil {
		return true
	}
	return value == m.Equals
}

// Condition gates a field's visibility. All matchers must hold.
type Condition struct {
	AllOf []Matcher
}

func (c Condition) satisfied(decl models.Declaration) bool {
	for _, m := range c.AllOf {
		if !m.satisfied(decl) {
			return false
		}
	}
	return true
}

// Field configures a single declaration entry.
type Field struct {
	ID            string
	Type          FieldType
	Required      bool
	Uncorrectable bool
	// Visibility conditions; the field is hidden (and skipped entirely,
	// requiredness included) unless every condition is satisfied by the
	// combined declaration under validation.
	Conditions []Condition
	// Options restricts SELECT values.
	Options []string
	// MaxLength caps TEXT/EMAIL values; zero means unlimited.
	MaxLength int
}

// Visible reports whether the field participates in validation for the
// given declaration.
func (f Field) Visible(decl models.Declaration) bool {
	for _, c := range f.Conditions {
		if !c.satisfied(decl) {
			return false
		}
	}
	return true
}

// Form is the versioned validation configuration for one event type.
type Form struct {
	EventType string
	Version   string
	Fields    []Field
}

// Find returns the config for a field path.
func (f *Form) Find(fieldID string) (Field, bool) {
	for _, field := range f.Fields {
		if field.ID == fieldID {
			return field, true
		}
	}
	return Field{}, false
}
