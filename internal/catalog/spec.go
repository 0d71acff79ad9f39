package catalog

import (
	"fmt"

	"github.com/matthewbaird/canvas/internal/component"
	"github.com/matthewbaird/canvas/internal/form"
	"github.com/matthewbaird/canvas/internal/types"
)

// Decoded mirrors of the #Kind, #Group and #Field definitions.

type choiceSpec struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

type fieldSpec struct {
	Key           string         `json:"key"`
	Label         string         `json:"label"`
	Kind          string         `json:"kind"`
	Value         any            `json:"value"`
	ReadOnly      bool           `json:"readOnly"`
	Disabled      bool           `json:"disabled"`
	Min           *float64       `json:"min"`
	Max           *float64       `json:"max"`
	Precision     *int           `json:"precision"`
	Prefix        string         `json:"prefix"`
	Suffix        string         `json:"suffix"`
	Placeholder   string         `json:"placeholder"`
	Choices       []choiceSpec   `json:"choices"`
	ComponentType string         `json:"componentType"`
	Args          map[string]any `json:"args"`
}

type groupSpec struct {
	Key    string      `json:"key"`
	Label  string      `json:"label"`
	Fields []fieldSpec `json:"fields"`
}

type kindSpec struct {
	Name        string         `json:"name"`
	Group       string         `json:"group"`
	Icon        string         `json:"icon"`
	Width       float64        `json:"width"`
	Height      float64        `json:"height"`
	DataMode    string         `json:"dataMode"`
	Properties  []groupSpec    `json:"properties"`
	Style       []groupSpec    `json:"style"`
	ExampleData any            `json:"exampleData"`
	ExtraStyle  map[string]any `json:"extraStyle"`
}

func (s kindSpec) build() (*component.Kind, error) {
	props, err := buildSchema(s.Properties)
	if err != nil {
		return nil, err
	}
	style, err := buildSchema(s.Style)
	if err != nil {
		return nil, err
	}
	k := &component.Kind{
		Name:           s.Name,
		Group:          s.Group,
		Icon:           s.Icon,
		Width:          s.Width,
		Height:         s.Height,
		DataMode:       types.DataMode(s.DataMode),
		PropertySchema: props,
		StyleSchema:    style,
		ExampleData:    jsonNumbers(s.ExampleData),
	}
	if len(s.ExtraStyle) > 0 {
		k.ExtraStyle = jsonNumbers(s.ExtraStyle).(map[string]any)
	}
	k.StyleToCSS = styleConverter(style)
	return k, nil
}

func buildSchema(groups []groupSpec) (form.Schema, error) {
	var s form.Schema
	for _, g := range groups {
		fg := &form.Group{Key: g.Key, Label: g.Label}
		for _, f := range g.Fields {
			ff, err := f.build()
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", g.Key, f.Key, err)
			}
			fg.Fields = append(fg.Fields, ff)
		}
		s = append(s, fg)
	}
	return s, nil
}

func (f fieldSpec) build() (*form.Field, error) {
	kind, err := form.ParseFieldKind(f.Kind)
	if err != nil {
		return nil, err
	}
	out := &form.Field{
		Key:      f.Key,
		Label:    f.Label,
		Kind:     kind,
		Value:    jsonNumbers(f.Value),
		ReadOnly: f.ReadOnly,
		Disabled: f.Disabled,
	}
	switch kind {
	case form.KindNumber:
		out.Options = form.NumberOptions{Min: f.Min, Max: f.Max, Precision: f.Precision, Prefix: f.Prefix, Suffix: f.Suffix}
	case form.KindSelect, form.KindRadio:
		opts := form.SelectOptions{}
		for _, c := range f.Choices {
			opts.Choices = append(opts.Choices, form.Choice{Label: c.Label, Value: jsonNumbers(c.Value)})
		}
		out.Options = opts
	case form.KindText, form.KindTextarea:
		if f.Prefix != "" || f.Suffix != "" || f.Placeholder != "" {
			out.Options = form.TextOptions{Prefix: f.Prefix, Suffix: f.Suffix, Placeholder: f.Placeholder}
		}
	case form.KindCustom:
		var args map[string]any
		if len(f.Args) > 0 {
			args = jsonNumbers(f.Args).(map[string]any)
		}
		out.Options = form.CustomOptions{ComponentType: f.ComponentType, Args: args}
	}
	return out, nil
}

// jsonNumbers converts CUE integers to float64 so catalog defaults compare
// equal to values that went through encoding/json.
func jsonNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonNumbers(e)
		}
		return out
	default:
		if f, ok := form.ToFloat(v); ok {
			return f
		}
		return v
	}
}
