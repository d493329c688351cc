package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Output writes rendered lines to a writer, standard output by default.
// Used for dry runs where no collector is dialed.
type Output struct {
	w io.Writer
}

// New creates an Output writing to w. A nil w means os.Stdout.
func New(w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{w: w}
}

func (o *Output) Write(_ context.Context, line []byte) error {
	if _, err := o.w.Write(line); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
