// Package paths resolves dotted string paths against decoded JSON documents.
// Provider payloads address fields as "deal.stageid" or "data.message_id";
// resolution must distinguish a missing segment from a segment that exists
// but is not traversable.
package paths

import "strings"

// Kind classifies the outcome of a resolution.
type Kind int

const (
	// Found means every segment resolved and Value holds the leaf.
	Found Kind = iota
	// Missing means an intermediate or leaf key was absent.
	Missing
	// TypeMismatch means an intermediate segment exists but is not an
	// object, so traversal cannot continue.
	TypeMismatch
)

// Result is the outcome of resolving one path.
type Result struct {
	Kind  Kind
	Value any
}

// Resolve walks doc along the dot-separated path. A missing intermediate key
// yields Missing, never a panic or an error.
func Resolve(doc map[string]any, path string) Result {
	if path == "" {
		return Result{Kind: Missing}
	}

	// Exact top-level key wins, even if it contains dots. Payloads retain
	// originally-cased keys like "deal[stageid]" alongside synthetic dotted
	// ones.
	if v, ok := doc[path]; ok {
		return Result{Kind: Found, Value: v}
	}

	segments := strings.Split(path, ".")
	var current any = doc
	for i, seg := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return Result{Kind: TypeMismatch}
		}
		v, ok := obj[seg]
		if !ok {
			return Result{Kind: Missing}
		}
		if i == len(segments)-1 {
			return Result{Kind: Found, Value: v}
		}
		current = v
	}
	return Result{Kind: Missing}
}

// ResolveString resolves path and coerces the leaf to a string. Numbers are
// formatted without an exponent since provider IDs arrive as JSON numbers.
func ResolveString(doc map[string]any, path string) (string, bool) {
	res := Resolve(doc, path)
	if res.Kind != Found {
		return "", false
	}
	return Stringify(res.Value)
}

// First resolves the first candidate path that yields a value.
func First(doc map[string]any, candidates []string) (string, bool) {
	for _, p := range candidates {
		if v, ok := ResolveString(doc, p); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Flatten returns doc with synthetic dotted-path keys added for every nested
// object, retaining the original keys. Transform rules address fields by
// either form.
func Flatten(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out map[string]any, prefix string, doc map[string]any) {
	for k, v := range doc {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		out[key] = v
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
		}
	}
}
