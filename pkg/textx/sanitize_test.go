package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "hello\nworld\t!", SanitizeText("he\x00llo\nwo\x7frld\t!"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c "))
}

func TestNormalizeLines(t *testing.T) {
	in := "  Title \r\n\r\n\r\n  body line\n\n\nend  "
	assert.Equal(t, "Title\n\nbody line\n\nend", NormalizeLines(in))
	assert.Equal(t, "", NormalizeLines(" \n \n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "h", Truncate("hé", 2), "does not split a rune")
}
