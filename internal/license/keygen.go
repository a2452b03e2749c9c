package license

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeyPrefix marks every license key issued by this service.
const KeyPrefix = "TBOT"

// NewLicenseKey returns a fresh opaque license key of the form
// TBOT-XXXX-XXXX-XXXX-XXXX, derived from a random UUID.
func NewLicenseKey() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		KeyPrefix, raw[0:4], raw[4:8], raw[8:12], raw[12:16])
}

// ValidKeyFormat reports whether key looks like an issued license key.
// Format checks are advisory; the signature check is authoritative.
func ValidKeyFormat(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) != 5 || parts[0] != KeyPrefix {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 4 {
			return false
		}
		for _, c := range p {
			if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
				return false
			}
		}
	}
	return true
}
