package tube

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/io-tubes/tubes/internal/duplex"
	"github.com/io-tubes/tubes/pkg/wirelog"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

// source wraps a read-only byte sequence as a duplex stream whose write
// side goes nowhere.
func source(s string) Stream {
	return struct {
		io.Reader
		io.Writer
	}{strings.NewReader(s), io.Discard}
}

// echoPair returns a Tube whose peer echoes everything back, plus the
// peer's close handle.
func echoPair(t *testing.T, opts ...Option) (*Tube, *duplex.End) {
	t.Helper()
	local, remote := duplex.Pair()
	go func() {
		_, _ = io.Copy(remote, remote)
		_ = remote.CloseWrite()
	}()
	p := New(local, append([]Option{WithSink(wirelog.Discard)}, opts...)...)
	t.Cleanup(func() { _ = p.Close() })
	return p, remote
}

func TestRecvUntil(t *testing.T) {
	p := New(source("The quick brown fox jumps over the lazy dog"), WithSink(wirelog.Discard))

	got, err := p.RecvUntil([]byte("fox"))
	require.NoError(t, err)
	require.Equal(t, []byte("The quick brown fox"), got)

	got, err = p.RecvUntil([]byte("over"))
	require.NoError(t, err)
	require.Equal(t, []byte(" jumps over"), got)

	got, err = p.RecvUntil([]byte("\x00"))
	require.NoError(t, err)
	require.Equal(t, []byte(" the lazy dog"), got)
}

func TestRecvUntilEmptyPattern(t *testing.T) {
	p := New(source("data"), WithSink(wirelog.Discard))
	_, err := p.RecvUntil(nil)
	require.Error(t, err)
}

func TestRecv(t *testing.T) {
	p := New(source("abcdef"), WithSink(wirelog.Discard))

	got, err := p.Recv(4)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), got)

	// Short result once the stream runs dry.
	got, err = p.Recv(100)
	require.NoError(t, err)
	require.Equal(t, []byte("ef"), got)

	// Empty result, nil error at end-of-stream.
	got, err = p.Recv(10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRecvTimeout(t *testing.T) {
	p, _ := echoPair(t, WithTimeout(30*time.Millisecond))

	// Nothing sent, so nothing echoes back: the timeout elapses and the
	// result is indistinguishable from end-of-stream.
	start := time.Now()
	got, err := p.Recv(10)
	require.NoError(t, err)
	require.Empty(t, got)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestRecvUntilTimeoutReturnsPartial(t *testing.T) {
	p, _ := echoPair(t, WithTimeout(50*time.Millisecond))

	require.NoError(t, p.Send([]byte("par")))
	got, err := p.RecvUntil([]byte("XYZ"))
	require.NoError(t, err)
	require.Equal(t, []byte("par"), got)
}

func TestSendLineRecvLine(t *testing.T) {
	p, _ := echoPair(t)

	require.NoError(t, p.SendLine([]byte("hello")))
	got, err := p.RecvLine()
	require.NoError(t, err)
	require.Equal(t, []byte("hello\n"), got)
}

func TestRecvLineAtEOF(t *testing.T) {
	p := New(source("no newline here"), WithSink(wirelog.Discard))
	got, err := p.RecvLine()
	require.NoError(t, err)
	require.Equal(t, []byte("no newline here"), got)
}

func TestSendLineAfter(t *testing.T) {
	p, _ := echoPair(t)

	require.NoError(t, p.Send([]byte("Hello, what's your name? ")))

	got, err := p.SendLineAfter([]byte("name"), []byte("test"))
	require.NoError(t, err)
	require.Equal(t, []byte("Hello, what's your name"), got)

	got, err = p.RecvLine()
	require.NoError(t, err)
	require.Equal(t, []byte("? test\n"), got)
}

func TestRecvUntilThenRecvContinues(t *testing.T) {
	p := New(source("head|tail"), WithSink(wirelog.Discard))

	got, err := p.RecvUntil([]byte("|"))
	require.NoError(t, err)
	require.Equal(t, []byte("head|"), got)

	// The remainder was not consumed by the match.
	got, err = p.Recv(100)
	require.NoError(t, err)
	require.Equal(t, []byte("tail"), got)
}

func TestNestedTubesShareLookahead(t *testing.T) {
	inner := New(source("one|two|"), WithSink(wirelog.Discard))
	outer := New(inner, WithSink(wirelog.Discard))

	got, err := outer.RecvUntil([]byte("|"))
	require.NoError(t, err)
	require.Equal(t, []byte("one|"), got)

	// The inner tube picks up exactly where the outer one stopped.
	got, err = inner.RecvUntil([]byte("|"))
	require.NoError(t, err)
	require.Equal(t, []byte("two|"), got)
}

func TestSinkSeesMirroredTraffic(t *testing.T) {
	var log wirelog.Buffer
	p, _ := echoPair(t)
	p.sink = &log

	require.NoError(t, p.SendLine([]byte("abc")))
	got, err := p.RecvLine()
	require.NoError(t, err)
	require.Equal(t, []byte("abc\n"), got)

	require.Equal(t, []byte("abc\n"), log.Sent())
	require.Equal(t, []byte("abc\n"), log.Received())
}

func TestSinkSeesEachByteOnce(t *testing.T) {
	var log wirelog.Buffer
	p := New(source("aaa|bbb|ccc"), WithSink(&log))

	_, err := p.RecvUntil([]byte("|"))
	require.NoError(t, err)
	_, err = p.RecvUntil([]byte("|"))
	require.NoError(t, err)
	_, err = p.Recv(100)
	require.NoError(t, err)

	require.Equal(t, []byte("aaa|bbb|ccc"), log.Received())
}

func TestRawReadWrite(t *testing.T) {
	p, _ := echoPair(t)

	n, err := p.Write([]byte("raw"))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	buf := make([]byte, 16)
	n, err = p.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "raw", string(buf[:n]))
}

func TestCloseWritePropagates(t *testing.T) {
	local, remote := duplex.Pair()
	p := New(local, WithSink(wirelog.Discard))

	require.NoError(t, p.Send([]byte("final")))
	require.NoError(t, p.CloseWrite())

	got, err := io.ReadAll(remote)
	require.NoError(t, err)
	require.Equal(t, []byte("final"), got)
}

func TestCloseWriteUnsupported(t *testing.T) {
	p := New(source("x"), WithSink(wirelog.Discard))
	require.ErrorIs(t, p.CloseWrite(), errors.ErrUnsupported)
}

func TestListenDial(t *testing.T) {
	l, err := Listen("127.0.0.1:0", WithSink(wirelog.Discard))
	require.NoError(t, err)
	defer l.Close()
	require.NotZero(t, l.Port())

	type accepted struct {
		p   *Tube
		err error
	}
	acceptc := make(chan accepted, 1)
	go func() {
		s, aerr := l.Accept()
		acceptc <- accepted{p: s, err: aerr}
	}()

	c, err := Dial(l.Addr().String(), WithSink(wirelog.Discard))
	require.NoError(t, err)
	defer c.Close()

	a := <-acceptc
	require.NoError(t, a.err)
	defer a.p.Close()

	require.NoError(t, c.Send([]byte("Client Hello")))
	require.NoError(t, a.p.Send([]byte("Server Hello")))

	got, err := c.RecvUntil([]byte("Hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("Server Hello"), got)

	got, err = a.p.RecvUntil([]byte("Hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("Client Hello"), got)
}
