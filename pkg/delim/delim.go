// Package delim implements linear-time delimiter matching over buffered
// byte sources (Knuth-Morris-Pratt).
//
// A Table precomputes the pattern's failure function as a full
// state × byte transition table, so scanning advances exactly one state per
// input byte regardless of how the pattern repeats. A Scanner carries the
// single integer of match progress, which is all that has to survive between
// two fills of the source.
package delim

import (
	"errors"
	"io"
	"time"

	"github.com/io-tubes/tubes/pkg/lookahead"
)

// ErrEmptyPattern is returned by NewTable for a zero-length pattern.
var ErrEmptyPattern = errors.New("delim: empty pattern")

// Table is an immutable transition table for one byte pattern. Row i holds,
// for every possible next byte, the match state after consuming that byte in
// state i. State len(pattern) is the accepting state.
type Table struct {
	next [][256]int
}

// NewTable builds the transition table for pattern. Construction costs
// len(pattern) × 256; the table encodes the longest proper suffix of the
// consumed input that is also a pattern prefix.
func NewTable(pattern []byte) (*Table, error) {
	if len(pattern) == 0 {
		return nil, ErrEmptyPattern
	}
	next := make([][256]int, len(pattern))
	lps := 0
	for row, want := range pattern {
		for b := 0; b < 256; b++ {
			if byte(b) == want {
				next[row][b] = row + 1
			} else {
				next[row][b] = next[lps][b]
			}
		}
		if row != 0 {
			lps = next[lps][want]
		}
	}
	return &Table{next: next}, nil
}

// Len returns the pattern length, which is also the accepting state.
func (t *Table) Len() int {
	return len(t.next)
}

// Scanner advances a Table over input a byte at a time. The zero state is
// "nothing matched"; a Scanner is owned by one matching operation for its
// whole lifetime.
type Scanner struct {
	table *Table
	state int
}

// NewScanner returns a Scanner in the initial state.
func NewScanner(t *Table) *Scanner {
	return &Scanner{table: t}
}

// Scan consumes p until the pattern completes or p is exhausted. It returns
// how many bytes were examined and whether the pattern completed on the last
// of them. Match progress carries over to the next call.
func (s *Scanner) Scan(p []byte) (advance int, matched bool) {
	for i, b := range p {
		s.state = s.table.next[s.state][b]
		if s.state == len(s.table.next) {
			return i + 1, true
		}
	}
	return len(p), false
}

// Reset returns the scanner to the initial state.
func (s *Scanner) Reset() {
	s.state = 0
}

// Source is the lookahead capability of a duplex stream: fill an internal
// buffer from the source, inspect it, and consume from the front. Fill
// returns the number of newly available bytes, io.EOF at end-of-stream, and
// an implementation-defined timeout error when the deadline passes first.
type Source interface {
	Fill(timeout time.Duration) (int, error)
	Buffered() []byte
	Discard(n int)
}

// ReadUntil reads from src until the pattern completes, returning the
// shortest sequence that ends with the pattern. Bytes are consumed from src
// exactly through the final pattern byte; everything after it stays buffered
// for the next operation.
//
// End-of-stream before a match returns everything read with a nil error: a
// partial match is ordinary data. A non-zero deadline bounds the whole
// operation; when it passes, everything scanned so far is returned with a
// nil error, the same shape as end-of-stream. I/O errors are returned
// together with the bytes read before the failure.
func ReadUntil(src Source, table *Table, deadline time.Time) ([]byte, error) {
	var out []byte
	s := NewScanner(table)
	for {
		if pending := src.Buffered(); len(pending) > 0 {
			advance, matched := s.Scan(pending)
			out = append(out, pending[:advance]...)
			src.Discard(advance)
			if matched {
				return out, nil
			}
		}

		timeout := time.Duration(0)
		if !deadline.IsZero() {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return out, nil
			}
		}
		if _, err := src.Fill(timeout); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, lookahead.ErrFillTimeout) {
				return out, nil
			}
			return out, err
		}
	}
}
