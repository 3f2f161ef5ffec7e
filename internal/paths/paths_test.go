package paths

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return doc
}

func TestResolve(t *testing.T) {
	doc := decode(t, `{
		"stage": "53",
		"deal": {"stageid": 43, "pipeline": {"id": "8"}},
		"deal[stageid]": "43-bracketed",
		"contact": null
	}`)

	tests := []struct {
		name  string
		path  string
		kind  Kind
		value any
	}{
		{"top level string", "stage", Found, "53"},
		{"nested number", "deal.stageid", Found, float64(43)},
		{"two levels deep", "deal.pipeline.id", Found, "8"},
		{"literal key with dots and brackets", "deal[stageid]", Found, "43-bracketed"},
		{"missing leaf", "deal.ownerid", Missing, nil},
		{"missing intermediate", "organization.name", Missing, nil},
		{"intermediate not an object", "stage.id", TypeMismatch, nil},
		{"null intermediate", "contact.email", TypeMismatch, nil},
		{"empty path", "", Missing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(doc, tt.path)
			assert.Equal(t, tt.kind, res.Kind)
			if tt.kind == Found {
				assert.Equal(t, tt.value, res.Value)
			}
		})
	}
}

func TestResolveString_NumberFormatting(t *testing.T) {
	doc := decode(t, `{"id": 123456789, "price": 21.5}`)

	id, ok := ResolveString(doc, "id")
	require.True(t, ok)
	assert.Equal(t, "123456789", id)

	price, ok := ResolveString(doc, "price")
	require.True(t, ok)
	assert.Equal(t, "21.5", price)
}

func TestFirst(t *testing.T) {
	doc := decode(t, `{"stage_id": "53", "deal": {"stageid": "59"}}`)

	v, ok := First(doc, []string{"stage", "stage_id", "deal.stageid"})
	require.True(t, ok)
	assert.Equal(t, "53", v)

	_, ok = First(doc, []string{"pipeline", "pipeline_id"})
	assert.False(t, ok)
}

func TestFlatten(t *testing.T) {
	doc := decode(t, `{"deal": {"id": "7", "pipeline": {"id": "8"}}, "stage": "43"}`)
	flat := Flatten(doc)

	// Original keys retained.
	assert.Contains(t, flat, "deal")
	assert.Contains(t, flat, "stage")

	// Synthetic dotted keys added.
	assert.Equal(t, "7", flat["deal.id"])
	assert.Equal(t, "8", flat["deal.pipeline.id"])
}
