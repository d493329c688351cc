package output

import "context"

// Output defines the interface for rendered-line destinations. A line is
// complete, newline included; Write either delivers all of it or fails.
type Output interface {
	Write(ctx context.Context, line []byte) error
	Close() error
}
