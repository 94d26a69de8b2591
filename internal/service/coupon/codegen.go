// internal/service/coupon/codegen.go
package coupon

import (
	"crypto/rand"
	"fmt"
	"time"
)

const codePrefix = "LUB"

// Ambiguous characters (0/O, 1/I) are excluded: codes are read over the
// phone and typed by hand.
const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCode mints a candidate code like LUB-2026-7KQX9M2F. Uniqueness
// is enforced by the database; callers retry on collision.
func generateCode(now time.Time) (string, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate coupon code: %w", err)
	}

	for i, b := range suffix {
		suffix[i] = codeCharset[int(b)%len(codeCharset)]
	}

	return fmt.Sprintf("%s-%d-%s", codePrefix, now.Year(), suffix), nil
}
