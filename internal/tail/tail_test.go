package tail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// follow ranges over f.Lines in the background. The returned stop function
// cancels the iteration and waits for it to finish.
func follow(f *Follower) (<-chan string, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range f.Lines(ctx) {
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() {
		cancel()
		<-done
	}
}

func next(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func appendTo(t *testing.T, path, s string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if _, err := file.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, s string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLines_StartsAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, "old line\n")

	lines, stop := follow(New(path, Options{Poll: 10 * time.Millisecond}, quietLogger()))
	defer stop()

	// The follower may not have opened the file yet, so keep appending
	// until something comes through.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case line := <-lines:
			if !strings.HasPrefix(line, "new ") {
				t.Fatalf("line = %q, want only appended lines", line)
			}
			return
		case <-tick.C:
			appendTo(t, path, fmt.Sprintf("new %d\n", i))
		case <-deadline:
			t.Fatal("timed out waiting for appended line")
		}
	}
}

func TestLines_FromStartAndPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, "first\r\n\nsec")

	lines, stop := follow(New(path, Options{FromStart: true, Poll: 10 * time.Millisecond}, quietLogger()))
	defer stop()

	if got := next(t, lines); got != "first" {
		t.Errorf("line = %q, want %q", got, "first")
	}
	appendTo(t, path, "ond\nthird\n")
	if got := next(t, lines); got != "second" {
		t.Errorf("line = %q, want %q", got, "second")
	}
	if got := next(t, lines); got != "third" {
		t.Errorf("line = %q, want %q", got, "third")
	}
}

func TestLines_Truncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, "one long line\ntwo long line\n")

	lines, stop := follow(New(path, Options{FromStart: true, Poll: 10 * time.Millisecond}, quietLogger()))
	defer stop()

	next(t, lines)
	next(t, lines)

	writeFile(t, path, "x\n")
	if got := next(t, lines); got != "x" {
		t.Errorf("line = %q, want %q", got, "x")
	}
}

func TestLines_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, "before\n")

	lines, stop := follow(New(path, Options{FromStart: true, Poll: 10 * time.Millisecond}, quietLogger()))
	defer stop()

	if got := next(t, lines); got != "before" {
		t.Fatalf("line = %q, want %q", got, "before")
	}

	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "after rotation\n")

	if got := next(t, lines); got != "after rotation" {
		t.Errorf("line = %q, want %q", got, "after rotation")
	}
}

func TestLines_RotationDrainsOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, "before\n")

	lines, stop := follow(New(path, Options{FromStart: true, Poll: 10 * time.Millisecond}, quietLogger()))
	defer stop()

	if got := next(t, lines); got != "before" {
		t.Fatalf("line = %q, want %q", got, "before")
	}

	// The writer still holds the old file after the rename.
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	appendTo(t, path+".1", "late write\nno newline")
	writeFile(t, path, "after rotation\n")

	for _, want := range []string{"late write", "no newline", "after rotation"} {
		if got := next(t, lines); got != want {
			t.Errorf("line = %q, want %q", got, want)
		}
	}
}

func TestLines_MissingFile(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "nope.log"), Options{}, quietLogger())
	for line := range f.Lines(context.Background()) {
		t.Errorf("unexpected line %q", line)
	}
	if f.Err() == nil {
		t.Error("expected error for missing file")
	}
}

func TestLines_ConsumerBreak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, "a\nb\nc\n")

	f := New(path, Options{FromStart: true, Poll: 10 * time.Millisecond}, quietLogger())
	var got []string
	for line := range f.Lines(context.Background()) {
		got = append(got, line)
		if len(got) == 2 {
			break
		}
	}
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("lines = %v, want [a b]", got)
	}
	if f.Err() != nil {
		t.Errorf("Err() = %v, want nil", f.Err())
	}
}
