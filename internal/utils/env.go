package utils

import (
	"os"
	"strings"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// NormalizeEmail trims and lower-cases an address. Participant sessions are
// keyed by this form on both sides of the wire.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
