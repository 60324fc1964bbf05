package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int64", int64(42), "42"},
		{"negative int", -100, "-100"},
		{"min int64", int64(-9223372036854775808), "-9223372036854775808"},
		{"bool true", true, "true"},
		{"empty array", []any{}, "[]"},
		{"string array", []string{"b", "a"}, `["b","a"]`},
		{"empty object", map[string]any{}, "{}"},
		{"nested", map[string]any{"a": []any{int64(1), "x"}}, `{"a":[1,"x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortsKeysByUTF16(t *testing.T) {
	// U+1F600 encodes to the surrogate 0xD83D in UTF-16, which sorts before
	// U+E000. In UTF-8 byte order U+E000 would come first.
	obj := map[string]any{
		"\uE000":     int64(1),
		"\U0001F600": int64(2),
		"b":          int64(3),
		"a":          int64(4),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":4,\"b\":3,\"\U0001F600\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	result, err := MarshalCanonical("<a & b>\n\"q\"\\ \x01")
	require.NoError(t, err)
	assert.Equal(t, "\"<a & b>\\n\\\"q\\\"\\\\ \\u0001\"", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalRejectsDuplicateKeysAfterNFC(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"e\u0301": int64(1), "\u00e9": int64(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestMarshalCanonicalRejectsForbiddenValues(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": struct{}{}})
	assert.Error(t, err)
}
