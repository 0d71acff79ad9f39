package catalog

import (
	"fmt"

	"github.com/matthewbaird/canvas/internal/form"
)

// cssConverters turn the value of a custom style editor into style entries,
// keyed by the editor's componentType.
var cssConverters = map[string]func(v map[string]any) map[string]any{
	"border": func(v map[string]any) map[string]any {
		w, _ := form.ToFloat(v["width"])
		if w <= 0 {
			return map[string]any{"border": "none"}
		}
		return map[string]any{"border": fmt.Sprintf("%gpx %v %v", w, str(v["style"], "solid"), str(v["color"], "#000000"))}
	},
	"shadow": func(v map[string]any) map[string]any {
		x, _ := form.ToFloat(v["x"])
		y, _ := form.ToFloat(v["y"])
		blur, _ := form.ToFloat(v["blur"])
		return map[string]any{"boxShadow": fmt.Sprintf("%gpx %gpx %gpx %v", x, y, blur, str(v["color"], "rgba(0,0,0,0.1)"))}
	},
}

func str(v any, def string) any {
	if v == nil || v == "" {
		return def
	}
	return v
}

// styleConverter builds the StyleToCSS hook for a style schema, or nil when
// the schema has no custom field with a known converter.
func styleConverter(s form.Schema) func(map[string]any) map[string]any {
	types := make(map[string]string)
	s.Walk(func(_ *form.Group, f *form.Field) {
		if o, ok := f.Options.(form.CustomOptions); ok {
			if _, known := cssConverters[o.ComponentType]; known {
				types[f.Key] = o.ComponentType
			}
		}
	})
	if len(types) == 0 {
		return nil
	}
	return func(custom map[string]any) map[string]any {
		out := make(map[string]any)
		for key, typ := range types {
			v, ok := custom[key].(map[string]any)
			if !ok {
				continue
			}
			for k, css := range cssConverters[typ](v) {
				out[k] = css
			}
		}
		return out
	}
}
