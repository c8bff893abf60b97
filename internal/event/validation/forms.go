package validation

// BirthForm is the canonical declaration form for birth registrations. It is
// the default configuration wired in cmd/server; deployments provide their
// own forms per event type.
//
// The informant block is conditionally visible: when the applicant declares
// themselves the informant, the informant fields are hidden and their
// requiredness is never evaluated.
func BirthForm() *Form {
	return &Form{
		EventType: "birth",
		Version:   "1.0.0",
		Fields: []Field{
			{ID: "applicant.firstname", Type: FieldText, Required: true, MaxLength: 250},
			{ID: "applicant.surname", Type: FieldText, Required: true, MaxLength: 250},
			{ID: "applicant.dob", Type: FieldDate, Required: true},
			{ID: "applicant.email", Type: FieldEmail},
			{
				ID:      "applicant.relation",
				Type:    FieldSelect,
				Options: []string{"MOTHER", "FATHER", "GUARDIAN", "OTHER"},
			},
			{
				ID:   "informant.self",
				Type: FieldCheckbox,
			},
			{
				ID:       "informant.firstname",
				Type:     FieldText,
				Required: true,
				Conditions: []Condition{
					{AllOf: []Matcher{{Field: "informant.self", Equals: false}}},
				},
			},
			{
				ID:       "informant.surname",
				Type:     FieldText,
				Required: true,
				Conditions: []Condition{
					{AllOf: []Matcher{{Field: "informant.self", Equals: false}}},
				},
			},
			{
				ID:   "child.firstname",
				Type: FieldText,
			},
			{
				ID:   "child.surname",
				Type: FieldText,
			},
			{ID: "child.dob", Type: FieldDate},
			// Assigned by the registrar on registration; never user-corrected.
			{ID: "registration.number", Type: FieldText, Uncorrectable: true},
		},
	}
}
