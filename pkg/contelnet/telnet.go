/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package contelnet implements the server side of the telnet protocol on top
// of a net.Conn: option negotiation, window size and terminal type reports,
// and IAC escaping of the data stream.
package contelnet

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
)

// Telnet commands
const (
	SE   byte = 240
	NOP  byte = 241
	SB   byte = 250
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255
)

// Telnet options
const (
	OptBinary byte = 0
	OptEcho   byte = 1
	OptSGA    byte = 3
	OptTType  byte = 24
	OptNAWS   byte = 31
)

const (
	ttypeIS   byte = 0
	ttypeSEND byte = 1
)

// maxSubneg bounds a subnegotiation payload
const maxSubneg = 256

type parseState int

const (
	stateData parseState = iota
	stateIAC
	stateOption
	stateSB
	stateSBIAC
)

// Conn is a telnet connection. Read returns the data stream with protocol
// bytes removed; Write escapes IAC bytes.
type Conn struct {
	conn      net.Conn
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error

	// parser state, only touched by the reading goroutine
	state   parseState
	verb    byte
	subneg  []byte
	buf     []byte
	pending []byte

	mu       sync.Mutex
	onResize func(cols, rows int)
	cols     int
	rows     int
	termType string
}

// New wraps an accepted connection
func New(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		buf:  make([]byte, 4096),
	}
}

// EnableRawMode asks the client for character-at-a-time input with
// server-side echo, and for window size and terminal type reports.
func (c *Conn) EnableRawMode() error {
	return c.command(
		[]byte{IAC, WILL, OptEcho},
		[]byte{IAC, WILL, OptSGA},
		[]byte{IAC, DO, OptBinary},
		[]byte{IAC, WILL, OptBinary},
		[]byte{IAC, DO, OptNAWS},
		[]byte{IAC, DO, OptTType},
	)
}

// DisableRawMode hands echo and line buffering back to the client
func (c *Conn) DisableRawMode() error {
	return c.command(
		[]byte{IAC, WONT, OptEcho},
		[]byte{IAC, WONT, OptSGA},
	)
}

func (c *Conn) command(cmds ...[]byte) error {
	var out []byte
	for _, cmd := range cmds {
		out = append(out, cmd...)
	}
	_, err := c.writeRaw(out)
	return err
}

// OnResize registers a callback for window size reports
func (c *Conn) OnResize(fn func(cols, rows int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResize = fn
}

// Size returns the last reported window size
func (c *Conn) Size() (cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cols, c.rows
}

// TerminalType returns the terminal type reported by the client
func (c *Conn) TerminalType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termType
}

// RemoteAddr returns the client address
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the connection. Only the first call has an effect.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Write sends data, doubling every IAC byte
func (c *Conn) Write(p []byte) (int, error) {
	escaped := make([]byte, 0, len(p))
	for _, b := range p {
		escaped = append(escaped, b)
		if b == IAC {
			escaped = append(escaped, IAC)
		}
	}
	if _, err := c.writeRaw(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}

// RawWriter returns a writer that sends bytes unescaped
func (c *Conn) RawWriter() io.Writer {
	return rawWriter{c}
}

type rawWriter struct {
	c *Conn
}

func (w rawWriter) Write(p []byte) (int, error) {
	return w.c.writeRaw(p)
}

func (c *Conn) writeRaw(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.Write(p)
}

// Read returns data bytes, handling any protocol traffic on the way
func (c *Conn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			replies, resized := c.parse(c.buf[:n])
			if len(replies) > 0 {
				if _, werr := c.writeRaw(replies); werr != nil {
					return 0, werr
				}
			}
			if resized {
				c.notifyResize()
			}
		}
		if err != nil {
			if len(c.pending) > 0 {
				break
			}
			return 0, err
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Conn) notifyResize() {
	c.mu.Lock()
	fn, cols, rows := c.onResize, c.cols, c.rows
	c.mu.Unlock()
	if fn != nil {
		fn(cols, rows)
	}
}

// parse runs the protocol state machine over in, appending data bytes to
// pending. It returns the negotiation replies to send and whether a window
// size report arrived.
func (c *Conn) parse(in []byte) (replies []byte, resized bool) {
	for _, b := range in {
		switch c.state {
		case stateData:
			if b == IAC {
				c.state = stateIAC
				continue
			}
			c.pending = append(c.pending, b)

		case stateIAC:
			switch b {
			case IAC:
				c.pending = append(c.pending, IAC)
				c.state = stateData
			case WILL, WONT, DO, DONT:
				c.verb = b
				c.state = stateOption
			case SB:
				c.subneg = c.subneg[:0]
				c.state = stateSB
			default:
				c.state = stateData
			}

		case stateOption:
			replies = append(replies, reply(c.verb, b)...)
			if c.verb == WILL && b == OptTType {
				replies = append(replies, IAC, SB, OptTType, ttypeSEND, IAC, SE)
			}
			c.state = stateData

		case stateSB:
			if b == IAC {
				c.state = stateSBIAC
				continue
			}
			if len(c.subneg) < maxSubneg {
				c.subneg = append(c.subneg, b)
			}

		case stateSBIAC:
			switch b {
			case SE:
				if c.subnegotiation(c.subneg) {
					resized = true
				}
				c.state = stateData
			case IAC:
				if len(c.subneg) < maxSubneg {
					c.subneg = append(c.subneg, IAC)
				}
				c.state = stateSB
			default:
				c.state = stateSB
			}
		}
	}
	return replies, resized
}

// supported lists the options this server negotiates
func supported(opt byte) bool {
	switch opt {
	case OptBinary, OptEcho, OptSGA, OptTType, OptNAWS:
		return true
	}
	return false
}

// reply answers a negotiation request. Requests for supported options are
// accepted silently; the rest are refused.
func reply(verb, opt byte) []byte {
	if supported(opt) {
		return nil
	}
	switch verb {
	case DO:
		return []byte{IAC, WONT, opt}
	case WILL:
		return []byte{IAC, DONT, opt}
	}
	return nil
}

// subnegotiation records a NAWS or TTYPE report and reports whether it was NAWS
func (c *Conn) subnegotiation(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch data[0] {
	case OptNAWS:
		if len(data) < 5 {
			return false
		}
		c.cols = int(binary.BigEndian.Uint16(data[1:3]))
		c.rows = int(binary.BigEndian.Uint16(data[3:5]))
		return true
	case OptTType:
		if len(data) > 1 && data[1] == ttypeIS {
			c.termType = string(data[2:])
		}
	}
	return false
}
