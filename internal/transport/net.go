package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// Dial connects to a server.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", psierr.ErrTransport, addr, err)
	}
	return NewConn(conn, timeout), nil
}

// Listener accepts framed connections.
type Listener struct {
	l       net.Listener
	timeout time.Duration
}

func Listen(addr string, timeout time.Duration) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{l: l, timeout: timeout}, nil
}

func (l *Listener) Addr() net.Addr { return l.l.Addr() }

// Accept waits for the next connection or for ctx to end.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.l.Accept()
		ch <- result{c, err}
	}()
	select {
	case <-ctx.Done():
		l.l.Close()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return NewConn(r.conn, l.timeout), nil
	}
}

// Accept retry delays, doubling between the two bounds.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// AcceptRetry is Accept that rides out transient failures such as running
// out of file descriptors. It returns only when a connection arrives, ctx
// ends or the listener is closed.
func (l *Listener) AcceptRetry(ctx context.Context) (*Conn, error) {
	var delay time.Duration
	for {
		conn, err := l.Accept(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil, err
		}
		if delay == 0 {
			delay = minAcceptDelay
		} else {
			delay = min(2*delay, maxAcceptDelay)
		}
		log.Printf("Accept failed: %v; retrying in %v", err, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (l *Listener) Close() error { return l.l.Close() }
