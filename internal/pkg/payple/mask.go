// internal/pkg/payple/mask.go
package payple

import "strings"

// MaskKey hides the middle of a billing or group key so it can be logged.
// Short values are fully masked.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
