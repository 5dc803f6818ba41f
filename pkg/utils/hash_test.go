package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	h := HashString("ada@example.com")

	assert.Len(t, h, 64)
	assert.Equal(t, h, HashString("  Ada@Example.COM "))
	assert.NotEqual(t, h, HashString("grace@example.com"))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashString(""))
}
