package tasks

import (
	"strings"
	"testing"
)

func TestLineWriterSplitsChunks(t *testing.T) {
	var all strings.Builder
	var lines []string
	w := &lineWriter{stream: "stdout", into: &all, onLine: func(_, line string) { lines = append(lines, line) }}

	for _, chunk := range []string{"unpa", "cking\r\nscene", ".json\n\n", "tail"} {
		w.Write([]byte(chunk))
	}
	if len(lines) != 3 {
		t.Fatalf("lines before flush = %q", lines)
	}
	w.flush()

	want := []string{"unpacking", "scene.json", "", "tail"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines = %q, want %q", lines, want)
		}
	}
	if all.String() != "unpacking\nscene.json\n\ntail\n" {
		t.Fatalf("captured = %q", all.String())
	}
}

func TestLineWriterBreaksOverlongLines(t *testing.T) {
	var all strings.Builder
	n := 0
	w := &lineWriter{stream: "stderr", into: &all, onLine: func(string, string) { n++ }}
	w.Write([]byte(strings.Repeat("x", maxLine+10)))
	w.flush()
	if n != 2 {
		t.Fatalf("forwarded %d pieces, want 2", n)
	}
}
