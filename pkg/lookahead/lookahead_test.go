package lookahead

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chanReader blocks until bytes are fed in or the channel is closed.
type chanReader struct {
	ch chan []byte
}

func newChanReader() *chanReader {
	return &chanReader{ch: make(chan []byte, 16)}
}

func (r *chanReader) Read(p []byte) (int, error) {
	b, ok := <-r.ch
	if !ok {
		return 0, io.EOF
	}
	return copy(p, b), nil
}

func TestFillAndConsume(t *testing.T) {
	r := New(strings.NewReader("hello world"))

	n, err := r.Fill(0)
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, []byte("hello world"), r.Buffered())

	r.Discard(6)
	require.Equal(t, []byte("world"), r.Buffered())

	r.Discard(5)
	require.Empty(t, r.Buffered())

	_, err = r.Fill(0)
	require.ErrorIs(t, err, io.EOF)
}

func TestFillReturnsOnlyNewBytes(t *testing.T) {
	src := newChanReader()
	r := New(src)

	src.ch <- []byte("abc")
	n, err := r.Fill(0)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// A second fill must wait for bytes beyond the current content.
	src.ch <- []byte("de")
	n, err = r.Fill(0)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte("abcde"), r.Buffered())
}

func TestFillTimeout(t *testing.T) {
	src := newChanReader()
	r := New(src)

	_, err := r.Fill(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrFillTimeout)

	// Bytes from the read that was in flight during the timeout must not
	// be lost: they show up on the next fill.
	src.ch <- []byte("late")
	n, err := r.Fill(time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("late"), r.Buffered())
}

func TestReadDrainsBufferFirst(t *testing.T) {
	r := New(strings.NewReader("abcdef"))

	_, err := r.Fill(0)
	require.NoError(t, err)
	r.Discard(1)

	p := make([]byte, 3)
	n, err := r.Read(p)
	require.NoError(t, err)
	require.Equal(t, "bcd", string(p[:n]))

	n, err = r.Read(p)
	require.NoError(t, err)
	require.Equal(t, "ef", string(p[:n]))

	_, err = r.Read(p)
	require.ErrorIs(t, err, io.EOF)
}

func TestStickyErrorAfterDrain(t *testing.T) {
	src := newChanReader()
	r := New(src)

	src.ch <- []byte("tail")
	close(src.ch)

	_, err := r.Fill(0)
	require.NoError(t, err)

	// EOF is not delivered while data remains.
	p := make([]byte, 10)
	n, err := r.Read(p)
	require.NoError(t, err)
	require.Equal(t, "tail", string(p[:n]))

	_, err = r.Read(p)
	require.ErrorIs(t, err, io.EOF)
}

func TestDiscardBeyondBufferPanics(t *testing.T) {
	r := New(strings.NewReader("ab"))
	_, err := r.Fill(0)
	require.NoError(t, err)
	require.Panics(t, func() { r.Discard(3) })
}

func TestSourceError(t *testing.T) {
	boom := errors.New("boom")
	r := New(&failReader{err: boom})
	_, err := r.Fill(0)
	require.ErrorIs(t, err, boom)
}

type failReader struct {
	err error
}

func (r *failReader) Read([]byte) (int, error) {
	return 0, r.err
}
