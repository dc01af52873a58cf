package tube

import "io"

// Stream is the duplex byte-stream contract every primitive and decorator
// implements: a read attempt and a write attempt over a byte channel.
// Further capabilities are discovered by interface assertion: io.Closer,
// CloseWriter, Flusher, and the lookahead capability delim.Source. Shared
// logic never special-cases concrete stream types.
type Stream interface {
	io.Reader
	io.Writer
}

// CloseWriter is the half-close capability: no more local writes, reads may
// continue until the remote side ends the stream.
type CloseWriter interface {
	CloseWrite() error
}

// Flusher pushes any locally buffered written bytes toward the remote end.
type Flusher interface {
	Flush() error
}
