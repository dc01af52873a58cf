package tube

import (
	"errors"
	"io"
	"os"
)

// ErrBrokenTube is returned by Interactive when the tube side reaches
// end-of-stream. During a session the remote end vanishing is noteworthy,
// so unlike console end-of-stream it is promoted to an error.
var ErrBrokenTube = errors.New("tube: remote end closed during interactive session")

// Interactive bridges the tube to the process console: stdin is forwarded
// to the tube's write side, tube output to stdout, each direction making
// progress independently. It returns nil when the console reaches
// end-of-stream (user-initiated end), ErrBrokenTube when the tube does, and
// the first I/O error otherwise.
func (t *Tube) Interactive() error {
	return t.interact(os.Stdin, os.Stdout)
}

// interact runs the bridge against an arbitrary console. The first
// direction to terminate decides the result; the other pump goroutine exits
// on its next attempt. A console blocked in Read keeps its goroutine parked
// until the console produces a byte or closes, the cost of not owning a
// scheduler that can cancel it.
func (t *Tube) interact(consoleIn io.Reader, consoleOut io.Writer) error {
	done := make(chan error, 2)
	go func() {
		done <- t.pumpConsole(consoleIn)
	}()
	go func() {
		done <- t.pumpTube(consoleOut)
	}()
	return <-done
}

// pumpConsole forwards console input to the tube until console
// end-of-stream, which ends the bridge cleanly.
func (t *Tube) pumpConsole(console io.Reader) error {
	buf := make([]byte, 4*1024)
	for {
		n, err := console.Read(buf)
		if n > 0 {
			if werr := t.Send(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// pumpTube forwards tube output to the console. A chunk the console has not
// accepted yet stays in the lookahead buffer, consumed only as the console
// takes it, so nothing is lost if forwarding stalls.
func (t *Tube) pumpTube(console io.Writer) error {
	for {
		if len(t.Buffered()) == 0 {
			if _, err := t.Fill(0); err != nil {
				if errors.Is(err, io.EOF) {
					return ErrBrokenTube
				}
				return err
			}
		}
		b := t.Buffered()
		n, err := console.Write(b)
		t.Discard(n)
		if err != nil {
			return err
		}
	}
}
