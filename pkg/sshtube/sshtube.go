// Package sshtube runs remote commands and shells over SSH and hands the
// session's stdin/stdout back as a Tube. The transport, authentication,
// and channel multiplexing all belong to golang.org/x/crypto/ssh; this
// package only maps a session onto the duplex stream contract.
package sshtube

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/io-tubes/tubes/pkg/tube"
)

// Client is an established SSH transport that can open session tubes.
type Client struct {
	ssh *ssh.Client
}

// Dial connects and authenticates to an SSH server.
func Dial(network, addr string, cfg *ssh.ClientConfig) (*Client, error) {
	c, err := ssh.Dial(network, addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}
	return &Client{ssh: c}, nil
}

// NewClient runs the SSH handshake over an existing connection. addr is
// reported to the server config's callbacks as the remote address string.
func NewClient(conn net.Conn, addr string, cfg *ssh.ClientConfig) (*Client, error) {
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to handshake with %s: %w", addr, err)
	}
	return &Client{ssh: ssh.NewClient(cc, chans, reqs)}, nil
}

// Run starts cmd on the remote side and returns a Tube over the session's
// stdin and stdout. Closing the Tube closes the session; the Client stays
// usable for further sessions.
func (c *Client) Run(cmd string, opts ...tube.Option) (*tube.Tube, error) {
	s, err := c.session(func(sess *ssh.Session) error { return sess.Start(cmd) })
	if err != nil {
		return nil, err
	}
	return tube.New(s, opts...), nil
}

// Shell starts a remote shell and returns a Tube over it.
func (c *Client) Shell(opts ...tube.Option) (*tube.Tube, error) {
	s, err := c.session(func(sess *ssh.Session) error { return sess.Shell() })
	if err != nil {
		return nil, err
	}
	return tube.New(s, opts...), nil
}

// Close tears down the SSH transport and every session on it.
func (c *Client) Close() error {
	return c.ssh.Close()
}

func (c *Client) session(start func(*ssh.Session) error) (*sessionStream, error) {
	sess, err := c.ssh.NewSession()
	if err != nil {
		return nil, fmt.Errorf("unable to open session: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("unable to capture session stdin: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("unable to capture session stdout: %w", err)
	}
	if err := start(sess); err != nil {
		sess.Close()
		return nil, fmt.Errorf("unable to start session: %w", err)
	}
	return &sessionStream{sess: sess, stdin: stdin, stdout: stdout}, nil
}

// sessionStream maps one SSH session onto the duplex stream contract.
type sessionStream struct {
	sess   *ssh.Session
	stdin  io.WriteCloser
	stdout io.Reader
}

func (s *sessionStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *sessionStream) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// CloseWrite sends EOF on the session's stdin; remote output stays
// readable.
func (s *sessionStream) CloseWrite() error {
	return s.stdin.Close()
}

func (s *sessionStream) Close() error {
	return s.sess.Close()
}
