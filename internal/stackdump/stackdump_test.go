package stackdump

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func namedUnit() {}

func TestFormat(t *testing.T) {
	t.Run("empty stack", func(t *testing.T) {
		assert.Equal(t, "[]", Format(nil))
	})

	t.Run("indexes every entry", func(t *testing.T) {
		out := Format([]any{namedUnit, 42, "x"})
		assert.True(t, strings.HasPrefix(out, "[{0: [func "), out)
		assert.Contains(t, out, "stackdump.namedUnit]}")
		assert.Contains(t, out, "{1: 42}")
		assert.Contains(t, out, "{2: x}")
	})
}

func TestEntry(t *testing.T) {
	t.Run("nil interface", func(t *testing.T) {
		assert.Equal(t, "<nil>", Entry(nil))
	})

	t.Run("nil func", func(t *testing.T) {
		var fn func()
		assert.Equal(t, "[func <nil>]", Entry(fn))
	})

	t.Run("struct value", func(t *testing.T) {
		out := Entry(struct{ Name string }{Name: "auth"})
		assert.Contains(t, out, "auth")
	})
}
