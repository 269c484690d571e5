package fillbot

import "strings"

var inputTypeKinds = map[string]Kind{
	"":         KindText,
	"text":     KindText,
	"email":    KindText,
	"tel":      KindText,
	"url":      KindText,
	"number":   KindText,
	"search":   KindText,
	"password": KindText,
	"radio":    KindRadio,
	"checkbox": KindCheckbox,
	"date":     KindDate,
}

var roleKinds = map[string]Kind{
	"radiogroup": KindRadio,
	"radio":      KindRadio,
	"checkbox":   KindCheckbox,
	"group":      KindCheckbox,
	"listbox":    KindDropdown,
	"combobox":   KindDropdown,
	"textbox":    KindText,
}

// Classify maps element metadata to a Kind. It is total: anything it does
// not recognise is KindUnknown.
func Classify(meta FieldMeta) Kind {
	tag := strings.ToLower(strings.TrimSpace(meta.Tag))
	typ := strings.ToLower(strings.TrimSpace(meta.Type))
	role := strings.ToLower(strings.TrimSpace(meta.Role))

	kind := KindUnknown
	switch tag {
	case "select":
		kind = KindDropdown
	case "textarea":
		kind = KindTextarea
	case "input":
		if k, ok := inputTypeKinds[typ]; ok {
			kind = k
		}
	default:
		if k, ok := roleKinds[role]; ok {
			kind = k
		}
	}
	if needsOptions(kind) && len(meta.Options) == 0 {
		return KindUnknown
	}
	return kind
}

func needsOptions(k Kind) bool {
	return k == KindRadio || k == KindCheckbox || k == KindDropdown
}

// NewFormField classifies meta and cleans its label.
func NewFormField(meta FieldMeta) FormField {
	options := make([]Option, 0, len(meta.Options))
	for _, o := range meta.Options {
		label := NormalizeLabel(o.Label)
		if label == "" {
			label = NormalizeText(o.Value)
		}
		options = append(options, Option{Label: label, Value: o.Value, Ref: o.Ref})
	}
	return FormField{
		Ref:      meta.Ref,
		Label:    NormalizeLabel(meta.Label),
		Kind:     Classify(meta),
		Options:  options,
		Required: meta.Required,
	}
}
