package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"truncated string value", `{"a": "foo", "b": "ba`, `{"a": "foo", "b": "ba"}`},
		{"trailing comma", `{"a": "foo",`, `{"a": "foo"}`},
		{"nested closers", `{"a": [1, 2, {"b": "c"`, `{"a": [1, 2, {"b": "c"}]}`},
		{"dangling escape", `{"path": "notes\`, `{"path": "notes"}`},
		{"escaped quote inside string", `{"q": "say \"hi`, `{"q": "say \"hi"}`},
		{"comma before existing closer", `{"a": [1, 2,]}`, `{"a": [1, 2]}`},
		{"comma inside string kept", `{"a": "x,}`, `{"a": "x,}"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Repair(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepair_ValidInputUnchanged(t *testing.T) {
	for _, in := range []string{`{}`, `{"a": [1, {"b": null}]}`, "  {\"x\": 1}\n", `[1,2]`} {
		got, err := Repair(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
}

func TestRepair_Idempotent(t *testing.T) {
	for _, in := range []string{`{"a": "foo", "b": "ba`, `{"a": "foo",`, `{"k": [true, false`} {
		once, err := Repair(in)
		require.NoError(t, err)
		twice, err := Repair(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestRepair_Unrecoverable(t *testing.T) {
	for _, in := range []string{``, `   `, `{"a": 1]`, `{"a":`, `not json at all`, `}`} {
		_, err := Repair(in)
		assert.ErrorIs(t, err, ErrUnrecoverable, in)
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json", "Sure:\n```json\n{\"category\": \"work\"}\n```\n", `{"category": "work"}`},
		{"unclosed fence", "```json\n{\"category\": \"wo", `{"category": "wo"}`},
		{"prose around object", `Here you go {"a": 1} hope that helps`, `{"a": 1}`},
		{"truncated after prose", `Calling: {"path": "context/work`, `{"path": "context/work"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Extract("no braces here")
	assert.ErrorIs(t, err, ErrUnrecoverable)
}
