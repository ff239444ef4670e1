// Package transport frames protocol messages over a byte stream. Every
// frame is a 10-byte header holding the payload length as ASCII decimal,
// left-aligned and padded with spaces, followed by exactly that many
// payload bytes.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/psierr"
)

// HeaderSize is the width of the length header.
const HeaderSize = 10

// DefaultMaxFrame bounds the payload a receiver accepts.
const DefaultMaxFrame = 1 << 30

// IOStats counts bytes and frames moved over a connection.
type IOStats struct {
	Sent   *atomic.Uint64
	Recvd  *atomic.Uint64
	Frames *atomic.Uint64
}

func NewIOStats() IOStats {
	return IOStats{
		Sent:   new(atomic.Uint64),
		Recvd:  new(atomic.Uint64),
		Frames: new(atomic.Uint64),
	}
}

// Sum returns sent plus received bytes.
func (stats IOStats) Sum() uint64 {
	return stats.Sent.Load() + stats.Recvd.Load()
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn exchanges length-prefixed frames. It is not safe for concurrent
// senders or concurrent receivers.
type Conn struct {
	conn     io.ReadWriteCloser
	r        *bufio.Reader
	w        *bufio.Writer
	Stats    IOStats
	Timeout  time.Duration
	MaxFrame int
}

// NewConn wraps conn. A zero timeout disables deadlines.
func NewConn(conn io.ReadWriteCloser, timeout time.Duration) *Conn {
	return &Conn{
		conn:     conn,
		r:        bufio.NewReaderSize(conn, 64*1024),
		w:        bufio.NewWriterSize(conn, 64*1024),
		Stats:    NewIOStats(),
		Timeout:  timeout,
		MaxFrame: DefaultMaxFrame,
	}
}

func (c *Conn) deadline() {
	if d, ok := c.conn.(deadliner); ok && c.Timeout > 0 {
		d.SetDeadline(time.Now().Add(c.Timeout))
	}
}

// EncodeHeader returns the header for a payload of n bytes.
func EncodeHeader(n int) ([]byte, error) {
	s := strconv.Itoa(n)
	if n < 0 || len(s) > HeaderSize {
		return nil, psierr.Transport("payload length %d does not fit the header", n)
	}
	hdr := bytes.Repeat([]byte{' '}, HeaderSize)
	copy(hdr, s)
	return hdr, nil
}

// DecodeHeader parses a length header. Spaces are accepted on either side
// of the digits, anything else is rejected.
func DecodeHeader(hdr []byte) (int, error) {
	s := string(bytes.Trim(hdr, " "))
	if s == "" {
		return 0, psierr.Transport("empty length header")
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, psierr.Transport("malformed length header %q", hdr)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, psierr.Transport("malformed length header %q", hdr)
	}
	return n, nil
}

// Send writes one frame.
func (c *Conn) Send(payload []byte) error {
	hdr, err := EncodeHeader(len(payload))
	if err != nil {
		return err
	}
	c.deadline()
	if _, err := c.w.Write(hdr); err != nil {
		return fmt.Errorf("%w: write header: %v", psierr.ErrTransport, err)
	}
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("%w: write payload: %v", psierr.ErrTransport, err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %v", psierr.ErrTransport, err)
	}
	c.Stats.Sent.Add(uint64(HeaderSize + len(payload)))
	c.Stats.Frames.Add(1)
	return nil
}

// Receive reads one frame. A stream that ends before the declared length
// is an error; a partial payload is never returned.
func (c *Conn) Receive() ([]byte, error) {
	c.deadline()
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(c.r, hdr); err != nil {
		return nil, readError("header", err)
	}
	n, err := DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	if n > c.MaxFrame {
		return nil, psierr.Transport("frame of %d bytes exceeds limit %d", n, c.MaxFrame)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, readError("payload", err)
	}
	c.Stats.Recvd.Add(uint64(HeaderSize + n))
	c.Stats.Frames.Add(1)
	return payload, nil
}

func readError(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return psierr.Transport("connection closed while reading %s", what)
	}
	return fmt.Errorf("%w: read %s: %v", psierr.ErrTransport, what, err)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
