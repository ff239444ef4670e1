package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stream struct {
	io.Reader
	io.Writer
}

func (stream) Close() error { return nil }

func TestHeaderLayout(t *testing.T) {
	hdr, err := EncodeHeader(1234)
	require.NoError(t, err)
	assert.Equal(t, "1234      ", string(hdr))

	n, err := DecodeHeader([]byte("  42      "))
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	for _, bad := range []string{"          ", "12a4      ", "-5        ", "1 2       "} {
		_, err := DecodeHeader([]byte(bad))
		assert.ErrorIs(t, err, psierr.ErrTransport, bad)
	}

	_, err = EncodeHeader(-1)
	assert.ErrorIs(t, err, psierr.ErrTransport)
}

func TestFragmentedReads(t *testing.T) {
	var buf bytes.Buffer
	w := NewConn(stream{Writer: &buf}, 0)
	msgs := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{7}, 70000)}
	for _, m := range msgs {
		require.NoError(t, w.Send(m))
	}
	assert.Equal(t, uint64(3), w.Stats.Frames.Load())

	r := NewConn(stream{Reader: iotest.OneByteReader(&buf)}, 0)
	for _, m := range msgs {
		got, err := r.Receive()
		require.NoError(t, err)
		assert.Equal(t, len(m), len(got))
		assert.True(t, bytes.Equal(m, got))
	}
	assert.Equal(t, w.Stats.Sent.Load(), r.Stats.Recvd.Load())
}

func TestEarlyClose(t *testing.T) {
	// Header promises 100 bytes, stream ends after 3.
	r := NewConn(stream{Reader: bytes.NewReader([]byte("100       abc"))}, 0)
	_, err := r.Receive()
	assert.ErrorIs(t, err, psierr.ErrTransport)

	r = NewConn(stream{Reader: bytes.NewReader([]byte("10"))}, 0)
	_, err = r.Receive()
	assert.ErrorIs(t, err, psierr.ErrTransport)
}

func TestMaxFrame(t *testing.T) {
	r := NewConn(stream{Reader: bytes.NewReader([]byte("2048      "))}, 0)
	r.MaxFrame = 1024
	_, err := r.Receive()
	assert.ErrorIs(t, err, psierr.ErrTransport)
}

func TestPipe(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		a.Send([]byte("ping"))
	}()
	got, err := b.Receive()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestListenDial(t *testing.T) {
	l, err := Listen("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		defer c.Close()
		msg, err := c.Receive()
		if err == nil {
			err = c.Send(append(msg, '!'))
		}
		done <- err
	}()

	c, err := Dial(ctx, l.Addr().String(), time.Second)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Send([]byte("hi")))
	got, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, "hi!", string(got))
	require.NoError(t, <-done)
}

// flakyListener fails its first fails calls to Accept.
type flakyListener struct {
	net.Listener
	fails int32
	calls atomic.Int32
}

func (f *flakyListener) Accept() (net.Conn, error) {
	if f.calls.Add(1) <= f.fails {
		return nil, errors.New("accept: too many open files")
	}
	return f.Listener.Accept()
}

func TestAcceptRetryBacksOff(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	flaky := &flakyListener{Listener: inner, fails: 3}
	l := &Listener{l: flaky, timeout: time.Second}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		if c, err := Dial(ctx, l.Addr().String(), time.Second); err == nil {
			defer c.Close()
			<-ctx.Done()
		}
	}()

	start := time.Now()
	c, err := l.AcceptRetry(ctx)
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, int32(4), flaky.calls.Load())
	// 5ms, 10ms and 20ms between the four attempts
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestAcceptRetryStopsOnClose(t *testing.T) {
	l, err := Listen("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	done := make(chan error, 1)
	go func() {
		_, err := l.AcceptRetry(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("AcceptRetry kept retrying a closed listener")
	}
}

func TestAcceptRetryStopsOnCancel(t *testing.T) {
	l, err := Listen("127.0.0.1:0", time.Second)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.AcceptRetry(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
