package ui

import (
	"strings"
	"testing"
)

func TestWarningWithoutTerminal(t *testing.T) {
	// Test stderr is not a terminal, so the prefix stays plain.
	got := Warning("disk full")
	if got != "warning: disk full" {
		t.Fatalf("expected plain warning, got %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("expected no ANSI codes, got %q", got)
	}
}
