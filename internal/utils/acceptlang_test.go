package utils

import "testing"

func TestDetermineLocale_QueryParamWins(t *testing.T) {
	got := DetermineLocale("en-GB", "fr-FR,fr;q=0.9,en;q=0.8", []string{"fr", "en"}, "fr")
	if got != "en" {
		t.Fatalf("want en, got %s", got)
	}
}

func TestDetermineLocale_AcceptLanguageOrder(t *testing.T) {
	got := DetermineLocale("", "fr-FR,fr;q=0.9,en;q=0.8", []string{"fr", "en"}, "en")
	if got != "fr" {
		t.Fatalf("want fr, got %s", got)
	}
}

func TestDetermineLocale_AcceptLanguagePrefersHigherQ(t *testing.T) {
	got := DetermineLocale("", "fr;q=0.5,en;q=0.9", []string{"fr", "en"}, "fr")
	if got != "en" {
		t.Fatalf("want en, got %s", got)
	}
}

func TestDetermineLocale_DefaultFallback(t *testing.T) {
	got := DetermineLocale("", "", []string{"fr", "en"}, "fr")
	if got != "fr" {
		t.Fatalf("want fr fallback, got %s", got)
	}
}
