// Package fillbot matches web form questions to a user's data set and fills
// the form through a browser driver.
package fillbot

import "time"

// Kind is the interaction category of a form field. KindUnknown fields are
// always skipped.
type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindRadio    Kind = "radio"
	KindCheckbox Kind = "checkbox"
	KindDropdown Kind = "dropdown"
	KindDate     Kind = "date"
	KindUnknown  Kind = "unknown"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindText, KindTextarea, KindRadio, KindCheckbox, KindDropdown, KindDate, KindUnknown}
}

// Status is the terminal state of a field.
type Status string

const (
	StatusFilled  Status = "filled"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Option is a selectable choice of a radio, checkbox or dropdown field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

// FieldMeta is the raw descriptor a Driver reports for a discovered field.
type FieldMeta struct {
	Ref      string   `json:"ref"`
	Label    string   `json:"label"`
	Tag      string   `json:"tag"`
	Type     string   `json:"type,omitempty"`
	Role     string   `json:"role,omitempty"`
	Options  []Option `json:"options,omitempty"`
	Required bool     `json:"required,omitempty"`
	Multiple bool     `json:"multiple,omitempty"`
}

// FormField is a classified field ready for matching.
type FormField struct {
	Ref      string   `json:"ref"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Options  []Option `json:"options,omitempty"`
	Required bool     `json:"required,omitempty"`
}

// OptionLabels returns the option labels in document order.
func (f FormField) OptionLabels() []string {
	out := make([]string, len(f.Options))
	for i, o := range f.Options {
		out[i] = o.Label
	}
	return out
}

// MatchResult is the outcome of matching one question against the data set.
type MatchResult struct {
	Field      FormField `json:"field"`
	Matched    bool      `json:"matched"`
	MatchedKey string    `json:"matchedKey,omitempty"`
	Value      string    `json:"value,omitempty"`
	Confidence float32   `json:"confidence"`
}

// FillOutcome records what happened to a single field.
type FillOutcome struct {
	Field      FormField     `json:"field"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	MatchedKey string        `json:"matchedKey,omitempty"`
	Value      string        `json:"value,omitempty"`
	Confidence float32       `json:"confidence,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Duration   time.Duration `json:"duration"`
}
