// Package batch holds the cross-cycle pending batch: JSONL lines accumulated
// until a flush submits them as one artifact.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Pending is a durable, append-only list of JSONL lines.
type Pending interface {
	// Count returns the number of accumulated lines.
	Count(ctx context.Context) (int, error)
	// Append adds lines in order. Lines must not contain newlines.
	Append(ctx context.Context, lines [][]byte) error
	// Contents returns the accumulated lines as a JSONL document.
	Contents(ctx context.Context) ([]byte, error)
	// Reset discards every accumulated line.
	Reset(ctx context.Context) error
}

// ErrMultiline is returned when a line would break JSONL framing.
var ErrMultiline = errors.New("batch: line contains a newline")

func validate(lines [][]byte) error {
	for i, l := range lines {
		if bytes.ContainsAny(l, "\r\n") {
			return fmt.Errorf("%w (line %d)", ErrMultiline, i)
		}
		if len(bytes.TrimSpace(l)) == 0 {
			return fmt.Errorf("batch: line %d is empty", i)
		}
	}
	return nil
}

// SplitLines splits a JSONL document into its non-empty lines.
func SplitLines(doc []byte) [][]byte {
	var out [][]byte
	for _, l := range bytes.Split(doc, []byte("\n")) {
		l = bytes.TrimRight(l, "\r")
		if len(bytes.TrimSpace(l)) > 0 {
			out = append(out, l)
		}
	}
	return out
}
