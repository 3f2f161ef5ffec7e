// Package transform maps external payload fields onto internal entity fields
// according to active FieldMap rows, applying named value transforms in
// declaration order.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tripdesk/syncbridge/internal/models"
	"github.com/tripdesk/syncbridge/internal/paths"
)

// Func is a pure value transform. Adding a transform means registering a
// Func; the mapping loop never changes.
type Func func(v any) any

// Registry resolves transform names to functions. Unknown names are no-ops
// with a warning, never a hard failure.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a registry preloaded with the builtin transforms.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("lowercase", func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
		return v
	})
	r.Register("uppercase", func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToUpper(s)
		}
		return v
	})
	r.Register("trim", func(v any) any {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return v
	})
	r.Register("number", func(v any) any {
		switch t := v.(type) {
		case string:
			if n, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return n
			}
			return v
		default:
			return v
		}
	})
	r.Register("string", func(v any) any {
		if s, ok := paths.Stringify(v); ok {
			return s
		}
		return v
	})
	return r
}

// Register adds or replaces a named transform.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Apply runs the named transforms over v in order. Names without a
// registered function are skipped and reported in warnings.
func (r *Registry) Apply(v any, names []string) (any, []string) {
	var warnings []string
	for _, name := range names {
		fn, ok := r.funcs[name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown transform %q skipped", name))
			continue
		}
		v = fn(v)
	}
	return v, warnings
}

// Engine maps payloads through FieldMap rows.
type Engine struct {
	registry *Registry
}

// NewEngine creates a mapping engine over the given registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Result is the output of mapping one payload.
type Result struct {
	// Fields is a flat object suitable for entity upsert. Fields whose
	// external path did not resolve are absent, not nil.
	Fields map[string]any
	// Warnings records skipped transforms and unresolved paths for the
	// processing log.
	Warnings []string
}

// Map extracts each active inbound rule's external field from the payload by
// dotted-path traversal and assigns it to the local field key. A missing
// intermediate key yields no mapped field, never an error.
func (e *Engine) Map(payload map[string]any, rules []*models.FieldMap) Result {
	out := Result{Fields: make(map[string]any)}
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		res := paths.Resolve(payload, rule.ExternalFieldID)
		switch res.Kind {
		case paths.Missing:
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("field %s: path %q not present in payload", rule.LocalFieldKey, rule.ExternalFieldID))
			continue
		case paths.TypeMismatch:
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("field %s: path %q crosses a non-object value", rule.LocalFieldKey, rule.ExternalFieldID))
			continue
		}
		v, warns := e.registry.Apply(res.Value, rule.Transforms)
		out.Warnings = append(out.Warnings, warns...)
		out.Fields[rule.LocalFieldKey] = v
	}
	return out
}
