// Package proctube exposes a spawned child process's standard streams as a
// duplex byte stream: reads come from the child's stdout, writes go to its
// stdin. No framing is added. Stderr and the process lifetime stay with
// this package; the decorators above it never touch OS resources.
package proctube

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Proc is a running child process satisfying the duplex stream contract.
type Proc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	waited bool
}

// Start spawns the program with piped stdin and stdout.
func Start(name string, args ...string) (*Proc, error) {
	return FromCmd(exec.Command(name, args...))
}

// FromCmd spawns a prepared command, taking over its stdin and stdout.
// Failure to capture either stream, or to start the child, is a
// construction error: the Proc is not created and the child does not
// outlive the attempt.
func FromCmd(cmd *exec.Cmd) (*Proc, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to capture stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("unable to capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("unable to start %s: %w", cmd.Path, err)
	}
	return &Proc{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Read reads from the child's stdout. It returns io.EOF once the child
// closes its end.
func (p *Proc) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Write writes to the child's stdin.
func (p *Proc) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// CloseWrite closes the child's stdin, delivering end-of-stream to the
// child while its stdout stays readable.
func (p *Proc) CloseWrite() error {
	return p.stdin.Close()
}

// Wait closes stdin and reaps the child, returning its exit error.
func (p *Proc) Wait() error {
	_ = p.stdin.Close()
	p.waited = true
	return p.cmd.Wait()
}

// Close releases the child: stdin is closed, a still-running child is
// killed, and the process is reaped.
func (p *Proc) Close() error {
	if p.waited {
		return nil
	}
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.waited = true
	err := p.cmd.Wait()
	// A kill-induced exit is the expected teardown, not a failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// Pid returns the child's process id.
func (p *Proc) Pid() int {
	return p.cmd.Process.Pid
}
