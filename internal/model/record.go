package model

// Record is one log event delivered by an export provider. Field order is
// significant and is preserved in the rendered line. A Record, and the
// fields it holds, must not be retained past the callback that received it.
type Record struct {
	Fields []Field
}
