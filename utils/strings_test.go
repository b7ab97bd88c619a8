package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "", BytesToString(nil))
	assert.Equal(t, "", BytesToString([]byte{}))
	assert.Equal(t, "galaxy brain", BytesToString([]byte("galaxy brain")))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "foo bar", NormalizeQuery("  Foo   BAR "))
	assert.Equal(t, "", NormalizeQuery("   "))
	assert.Equal(t, "a b c", NormalizeQuery("a\tb\nc"))
}
