package tube

import (
	"fmt"
	"net"
)

// Listener accepts TCP connections and hands them back as Tubes.
type Listener struct {
	inner net.Listener
	opts  []Option
}

// Listen binds addr ("host:port"; empty means any port on all interfaces)
// and returns a Listener. The options are applied to every accepted Tube.
func Listen(addr string, opts ...Option) (*Listener, error) {
	if addr == "" {
		addr = ":0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to bind %s: %w", addr, err)
	}
	return &Listener{inner: ln, opts: opts}, nil
}

// Accept waits for the next connection and wraps it in a Tube.
func (l *Listener) Accept() (*Tube, error) {
	conn, err := l.inner.Accept()
	if err != nil {
		return nil, err
	}
	return New(conn, l.opts...), nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.inner.Addr()
}

// Port returns the bound TCP port.
func (l *Listener) Port() int {
	return l.inner.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections. Tubes already accepted stay open.
func (l *Listener) Close() error {
	return l.inner.Close()
}

// Dial connects to a remote TCP address and wraps the connection in a Tube.
func Dial(addr string, opts ...Option) (*Tube, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}
