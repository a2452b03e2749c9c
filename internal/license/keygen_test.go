package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLicenseKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := NewLicenseKey()
		assert.True(t, ValidKeyFormat(key), "generated key %q should be well formed", key)
		assert.False(t, seen[key], "generated key %q repeated", key)
		seen[key] = true
	}
}

func TestValidKeyFormat(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"well formed", "TBOT-1234-ABCD-5678-EF90", true},
		{"empty", "", false},
		{"wrong prefix", "XBOT-1234-ABCD-5678-EF90", false},
		{"missing group", "TBOT-1234-ABCD-5678", false},
		{"extra group", "TBOT-1234-ABCD-5678-EF90-0000", false},
		{"short group", "TBOT-123-ABCD-5678-EF90", false},
		{"lowercase hex", "TBOT-12ab-ABCD-5678-EF90", false},
		{"non hex characters", "TBOT-12G4-ABCD-5678-EF90", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidKeyFormat(tt.key))
		})
	}
}
