// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package connection implements the buffered read/write loop that turns
// a net.Conn into a stream of whole protocol.Frame values and back.
package connection

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/nishisan-dev/keydb/internal/protocol"
)

// defaultBufSize is the connection's initial read buffer capacity.
const defaultBufSize = 4096

// ErrConnectionReset is returned by ReadFrame when the peer closed the
// connection mid-frame (a clean EOF with a non-empty buffered prefix).
var ErrConnectionReset = errors.New("connection: reset by peer")

// Connection owns a TCP stream and a reusable read buffer, and exposes
// whole-frame read/write operations on top of it.
type Connection struct {
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer
	buf    []byte // accumulated unconsumed bytes, buf[:start] already parsed
	start  int
	end    int
	writer io.Writer // bw, or a rate-limited wrapper over bw
}

// New wraps conn in a Connection with a 4 KiB growable read buffer.
func New(conn net.Conn) *Connection {
	return &Connection{
		conn:   conn,
		br:     bufio.NewReader(conn),
		bw:     bufio.NewWriter(conn),
		buf:    make([]byte, defaultBufSize),
		writer: nil,
	}
}

// SetWriteLimiter replaces the connection's write path with w, which must
// itself write through to the connection (directly or indirectly). Used
// to install a byte-rate limiter (see Throttle) without changing
// WriteFrame's call sites.
func (c *Connection) SetWriteLimiter(w io.Writer) {
	c.writer = w
}

// Writer returns the connection's buffered socket writer, the correct
// wrap target for a io.Writer middleware such as Throttle installed via
// SetWriteLimiter: wrapping c.bw (rather than the raw net.Conn) keeps
// writes going through bufio's batching before they hit the socket.
func (c *Connection) Writer() io.Writer {
	return c.bw
}

func (c *Connection) writeSink() io.Writer {
	if c.writer != nil {
		return c.writer
	}
	return c.bw
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// ReadFrame returns the next complete frame on the stream. It returns
// (nil, nil) on a clean EOF with no buffered bytes left unconsumed, and
// ErrConnectionReset if the peer closes mid-frame.
func (c *Connection) ReadFrame() (*protocol.Frame, error) {
	for {
		if c.end > c.start {
			n, err := protocol.Check(c.buf[c.start:c.end])
			if err == nil {
				frame, consumed, perr := protocol.Parse(c.buf[c.start : c.start+n])
				if perr != nil {
					return nil, perr
				}
				c.start += consumed
				return &frame, nil
			}
			if !errors.Is(err, protocol.ErrIncomplete) {
				return nil, err
			}
		}

		if err := c.fill(); err != nil {
			if err == io.EOF {
				if c.end > c.start {
					return nil, ErrConnectionReset
				}
				return nil, nil
			}
			return nil, fmt.Errorf("connection: reading: %w", err)
		}
	}
}

// fill reads more bytes from the socket into the buffer, compacting or
// growing it as needed, and never drops the unconsumed prefix.
func (c *Connection) fill() error {
	if c.start > 0 && c.end == len(c.buf) {
		copy(c.buf, c.buf[c.start:c.end])
		c.end -= c.start
		c.start = 0
	}
	if c.end == len(c.buf) {
		grown := make([]byte, len(c.buf)*2)
		copy(grown, c.buf[:c.end])
		c.buf = grown
	}

	n, err := c.br.Read(c.buf[c.end:])
	c.end += n
	if n > 0 {
		return nil
	}
	return err
}

// WriteFrame serialises frame and flushes it to the socket. Array
// frames are streamed: the "*<len>\r\n" header is written, then each
// element is encoded in turn (one level of nesting suffices for GET/SET
// replies, but writeElement recurses correctly should a nested array
// ever appear).
func (c *Connection) WriteFrame(frame protocol.Frame) error {
	if err := c.writeElement(frame); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *Connection) writeElement(frame protocol.Frame) error {
	if frame.Kind != protocol.KindArray {
		enc, err := frame.Encode()
		if err != nil {
			return err
		}
		_, err = c.writeSink().Write(enc)
		return err
	}

	header := fmt.Sprintf("*%d\r\n", len(frame.Array))
	if _, err := c.writeSink().Write([]byte(header)); err != nil {
		return err
	}
	for _, elem := range frame.Array {
		if err := c.writeElement(elem); err != nil {
			return err
		}
	}
	return nil
}
