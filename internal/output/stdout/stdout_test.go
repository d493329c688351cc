package stdout

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestWritesLinesVerbatim(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf)
	out.Write(context.Background(), []byte("a=1||b=2\n"))
	out.Write(context.Background(), []byte("a=3\n"))

	if buf.String() != "a=1||b=2\na=3\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestDefaultsToStdout(t *testing.T) {
	result := captureStdout(func() {
		out := New(nil)
		out.Write(context.Background(), []byte("user=admin\n"))
	})
	if result != "user=admin\n" {
		t.Errorf("stdout got %q", result)
	}
}

func TestWriteError(t *testing.T) {
	out := New(brokenWriter{})
	if err := out.Write(context.Background(), []byte("x=y\n")); err == nil {
		t.Fatal("expected error from broken writer")
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}
