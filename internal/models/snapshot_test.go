package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeAsMap(t *testing.T, base, patch string) map[string]any {
	t.Helper()
	out := MergeDoc(json.RawMessage(base), json.RawMessage(patch))
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	return m
}

func TestMergeDocOverlaysTopLevel(t *testing.T) {
	m := mergeAsMap(t, `{"streak":3,"goal":"run"}`, `{"streak":4}`)
	assert.Equal(t, float64(4), m["streak"])
	assert.Equal(t, "run", m["goal"])
}

func TestMergeDocNullDeletes(t *testing.T) {
	m := mergeAsMap(t, `{"streak":3,"goal":"run"}`, `{"goal":null}`)
	assert.Equal(t, float64(3), m["streak"])
	assert.NotContains(t, m, "goal")
}

func TestMergeDocReplacesNonObjects(t *testing.T) {
	out := MergeDoc(json.RawMessage(`[1,2,3]`), json.RawMessage(`{"a":1}`))
	assert.JSONEq(t, `{"a":1}`, string(out))

	out = MergeDoc(json.RawMessage(`{"a":1}`), json.RawMessage(`[1,2]`))
	assert.JSONEq(t, `[1,2]`, string(out))
}

func TestMergeDocNestedValuesReplacedWhole(t *testing.T) {
	m := mergeAsMap(t, `{"week":{"mo":1,"tu":2}}`, `{"week":{"we":3}}`)
	assert.Equal(t, map[string]any{"we": float64(3)}, m["week"])
}
