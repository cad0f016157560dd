package utils

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("strings under the cap pass through, got %q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Errorf("Truncate(abcdef, 3) = %q", got)
	}
	if got := Truncate("abcdef", 0); got != "abcdef" {
		t.Errorf("non-positive cap is a no-op, got %q", got)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	// Each rune is multi-byte; a byte-wise cut would split one in half.
	s := "ошибка конфигурации"

	got := Truncate(s, 6)
	if got != "ошибка" {
		t.Fatalf("Truncate = %q, want %q", got, "ошибка")
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8: %q", got)
	}
}
