package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(4.2)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysUTF16Order(t *testing.T) {
	// U+FF61 sorts before U+1F600 by code point but after it in UTF-16,
	// where the emoji encodes as surrogate 0xD83D.
	obj := IRObject{
		"\uff61":     IRInt(1),
		"\U0001F600": IRInt(2),
	}

	assert.Equal(t, []string{"\U0001F600", "\uff61"}, obj.SortedKeys())
}

func TestIRObjectClone(t *testing.T) {
	obj := IRObject{
		"nested": IRObject{"value": IRInt(1)},
		"list":   IRArray{IRString("a")},
	}

	cp := obj.Clone()
	cp["nested"].(IRObject)["value"] = IRInt(2)
	cp["list"].(IRArray)[0] = IRString("b")

	assert.Equal(t, IRInt(1), obj["nested"].(IRObject)["value"])
	assert.Equal(t, IRString("a"), obj["list"].(IRArray)[0])
}

func TestUnmarshalNumbers(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"i": 3, "f": 2.5, "big": 9007199254740993, "e": 1e3}`), &obj))

	assert.Equal(t, IRInt(3), obj["i"])
	assert.Equal(t, IRFloat(2.5), obj["f"])
	assert.Equal(t, IRInt(9007199254740993), obj["big"], "large integers must not lose precision")
	assert.Equal(t, IRFloat(1000), obj["e"])
}

func TestUnmarshalNullAndNesting(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"n": null, "a": [1, "x", {"b": false}]}`), &obj))

	_, isNull := obj["n"].(IRNull)
	assert.True(t, isNull, "expected IRNull, got %T", obj["n"])

	arr, ok := obj["a"].(IRArray)
	require.True(t, ok)
	require.Len(t, arr, 3)
	assert.Equal(t, IRObject{"b": IRBool(false)}, arr[2])
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected IRValue
	}{
		{"nil", nil, IRNull{}},
		{"string", "x", IRString("x")},
		{"int", 7, IRInt(7)},
		{"uint32", uint32(7), IRInt(7)},
		{"float", 1.25, IRFloat(1.25)},
		{"json int", json.Number("12"), IRInt(12)},
		{"json float", json.Number("1.5"), IRFloat(1.5)},
		{"slice", []any{1, "a"}, IRArray{IRInt(1), IRString("a")}},
		{"record", Record{"k": true}, IRObject{"k": IRBool(true)}},
		{"passthrough", IRString("ir"), IRString("ir")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFromGoRejects(t *testing.T) {
	_, err := FromGo(struct{}{})
	assert.Error(t, err)

	_, err = FromGo(uint64(1 << 63))
	assert.Error(t, err)

	_, err = FromGo(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestToGo(t *testing.T) {
	v := IRObject{
		"s": IRString("x"),
		"i": IRInt(1),
		"f": IRFloat(0.5),
		"b": IRBool(true),
		"n": IRNull{},
		"a": IRArray{IRInt(2)},
	}

	assert.Equal(t, map[string]any{
		"s": "x",
		"i": int64(1),
		"f": 0.5,
		"b": true,
		"n": nil,
		"a": []any{int64(2)},
	}, ToGo(v))
}

func TestEntityClone(t *testing.T) {
	e := Entity{
		Type:      "Pet",
		Key:       "1",
		Fields:    IRObject{"id": IRInt(1)},
		Relations: map[string][]string{"toys": {"a"}},
	}

	cp := e.Clone()
	cp.Fields["id"] = IRInt(2)
	cp.Relations["toys"][0] = "b"

	assert.Equal(t, IRInt(1), e.Fields["id"])
	assert.Equal(t, "a", e.Relations["toys"][0])
}
