package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.log")
	var b strings.Builder
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&b, "line %03d with some padding to cross chunk boundaries\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines, err := Tail(path, 20)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "line 481") || !strings.HasPrefix(lines[19], "line 500") {
		t.Fatalf("unexpected window: first=%q last=%q", lines[0], lines[19])
	}
}

func TestTailShortFileAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.log")
	if err := os.WriteFile(path, []byte("a\n\nb\r\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines, err := Tail(path, 20)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("unexpected lines: %q", lines)
	}

	if _, err := Tail(filepath.Join(t.TempDir(), "missing.log"), 5); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
