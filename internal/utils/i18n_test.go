package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("de", "login.invalid"); got != "Identifiants invalides" {
		t.Fatalf("fallback to fr failed: %s", got)
	}
	if got := T("en", "login.invalid"); got != "Invalid credentials" {
		t.Fatalf("en lookup failed: %s", got)
	}
	if got := T("en", "missing.key"); got != "missing.key" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}
