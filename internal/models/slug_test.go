package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSlug(t *testing.T) {
	valid := []string{"a", "standup", "q3-all-hands", "abc123", strings.Repeat("a", 64)}
	for _, s := range valid {
		assert.True(t, ValidSlug(s), "%q should be valid", s)
	}
	invalid := []string{"", "-leading", "UPPER", "has space", "has_underscore", "emoji🎉", strings.Repeat("a", 65)}
	for _, s := range invalid {
		assert.False(t, ValidSlug(s), "%q should be invalid", s)
	}
}
