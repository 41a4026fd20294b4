package ir

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		ft       FieldType
		input    any
		expected IRValue
	}{
		{"string", FieldString, "x", IRString("x")},
		{"int from int", FieldInt, 3, IRInt(3)},
		{"int from integral float", FieldInt, 3.0, IRInt(3)},
		{"int from json number", FieldInt, json.Number("9"), IRInt(9)},
		{"float from float", FieldFloat, 2.5, IRFloat(2.5)},
		{"float from int", FieldFloat, 2, IRFloat(2)},
		{"bool", FieldBool, true, IRBool(true)},
		{"object", FieldObject, map[string]any{"a": 1}, IRObject{"a": IRInt(1)}},
		{"record object", FieldObject, Record{"a": "b"}, IRObject{"a": IRString("b")}},
		{"array", FieldArray, []any{1, "x"}, IRArray{IRInt(1), IRString("x")}},
		{"record array", FieldArray, []Record{{"a": 1}}, IRArray{IRObject{"a": IRInt(1)}}},
		{"any", FieldAny, 1.5, IRFloat(1.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.ft, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCoerceMismatch(t *testing.T) {
	tests := []struct {
		name  string
		ft    FieldType
		input any
	}{
		{"string from int", FieldString, 1},
		{"int from fraction", FieldInt, 1.5},
		{"int from string", FieldInt, "1"},
		{"bool from int", FieldBool, 1},
		{"float from string", FieldFloat, "1.5"},
		{"object from array", FieldObject, []any{}},
		{"array from object", FieldArray, map[string]any{}},
		{"nil", FieldString, nil},
		{"null", FieldAny, IRNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.ft, tt.input)
			require.Error(t, err)
			var tm *TypeMismatchError
			assert.True(t, errors.As(err, &tm))
			assert.Equal(t, tt.ft, tm.Want)
		})
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name      string
		ft        FieldType
		input     any
		value     IRValue
		canonical string
	}{
		{"int", FieldInt, 42, IRInt(42), "42"},
		{"int from float", FieldInt, 42.0, IRInt(42), "42"},
		{"int from padded string", FieldInt, "042", IRInt(42), "42"},
		{"negative int", FieldInt, int64(-7), IRInt(-7), "-7"},
		{"string", FieldString, "abc", IRString("abc"), "abc"},
		{"string from int", FieldString, 12, IRString("12"), "12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, key, err := CanonicalKey(tt.ft, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.value, v)
			assert.Equal(t, tt.canonical, key)
		})
	}
}

func TestCanonicalKeyErrors(t *testing.T) {
	_, _, err := CanonicalKey(FieldInt, "abc")
	assert.Error(t, err)

	_, _, err = CanonicalKey(FieldInt, 1.5)
	assert.Error(t, err)

	_, _, err = CanonicalKey(FieldString, true)
	assert.Error(t, err)

	_, _, err = CanonicalKey(FieldFloat, 1.0)
	assert.Error(t, err)
}

func TestKeyValue(t *testing.T) {
	assert.Equal(t, int64(42), KeyValue(FieldInt, "42"))
	assert.Equal(t, "42", KeyValue(FieldString, "42"))
	assert.Equal(t, "x", KeyValue(FieldInt, "x"))
}
