package contelnet

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// pipe returns a server Conn and the client end whose output is collected
func pipe(t *testing.T) (*Conn, net.Conn, func() []byte) {
	t.Helper()
	server, client := net.Pipe()
	c := New(server)

	var mu sync.Mutex
	var got bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 256)
		for {
			n, err := client.Read(buf)
			mu.Lock()
			got.Write(buf[:n])
			mu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		_ = c.Close()
		_ = client.Close()
		<-done
	})

	collected := func() []byte {
		// give the reader a moment to drain
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return append([]byte(nil), got.Bytes()...)
	}
	return c, client, collected
}

// TestWriteEscapesIAC tests that data bytes equal to IAC are doubled
func TestWriteEscapesIAC(t *testing.T) {
	c, _, collected := pipe(t)

	n, err := c.Write([]byte{'a', IAC, 'b'})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 bytes reported, got %d", n)
	}

	want := []byte{'a', IAC, IAC, 'b'}
	if got := collected(); !bytes.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestRawWriter tests that the raw writer does not escape
func TestRawWriter(t *testing.T) {
	c, _, collected := pipe(t)

	if _, err := c.RawWriter().Write([]byte{IAC, NOP}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := collected(); !bytes.Equal(got, []byte{IAC, NOP}) {
		t.Errorf("Expected raw bytes, got %v", got)
	}
}

// TestEnableRawMode tests the negotiation sequence
func TestEnableRawMode(t *testing.T) {
	c, _, collected := pipe(t)

	if err := c.EnableRawMode(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []byte{
		IAC, WILL, OptEcho,
		IAC, WILL, OptSGA,
		IAC, DO, OptBinary,
		IAC, WILL, OptBinary,
		IAC, DO, OptNAWS,
		IAC, DO, OptTType,
	}
	if got := collected(); !bytes.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

// TestParse tests the protocol state machine
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		data    []byte
		replies []byte
		resized bool
	}{
		{
			name: "plain data",
			in:   []byte("hello"),
			data: []byte("hello"),
		},
		{
			name: "escaped IAC",
			in:   []byte{'a', IAC, IAC, 'b'},
			data: []byte{'a', IAC, 'b'},
		},
		{
			name: "accepted option",
			in:   []byte{IAC, DO, OptEcho, 'x'},
			data: []byte("x"),
		},
		{
			name:    "refused option",
			in:      []byte{IAC, DO, 34, IAC, WILL, 35},
			replies: []byte{IAC, WONT, 34, IAC, DONT, 35},
		},
		{
			name:    "terminal type offered",
			in:      []byte{IAC, WILL, OptTType},
			replies: []byte{IAC, SB, OptTType, ttypeSEND, IAC, SE},
		},
		{
			name:    "window size",
			in:      []byte{IAC, SB, OptNAWS, 0, 120, 0, 40, IAC, SE, 'z'},
			data:    []byte("z"),
			resized: true,
		},
		{
			name: "nop",
			in:   []byte{'a', IAC, NOP, 'b'},
			data: []byte("ab"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Conn{}
			replies, resized := c.parse(tt.in)
			if !bytes.Equal(c.pending, tt.data) {
				t.Errorf("Expected data %v, got %v", tt.data, c.pending)
			}
			if !bytes.Equal(replies, tt.replies) {
				t.Errorf("Expected replies %v, got %v", tt.replies, replies)
			}
			if resized != tt.resized {
				t.Errorf("Expected resized %v, got %v", tt.resized, resized)
			}
		})
	}
}

// TestParseSplitAcrossReads tests that state survives between chunks
func TestParseSplitAcrossReads(t *testing.T) {
	c := &Conn{}
	c.parse([]byte{'a', IAC, SB, OptNAWS, 0})
	_, resized := c.parse([]byte{80, 0, 24, IAC, SE, 'b'})

	if !resized {
		t.Error("Expected window size report")
	}
	if cols, rows := c.Size(); cols != 80 || rows != 24 {
		t.Errorf("Expected 80x24, got %dx%d", cols, rows)
	}
	if string(c.pending) != "ab" {
		t.Errorf("Expected data ab, got %q", c.pending)
	}
}

// TestTerminalType tests recording the terminal type report
func TestTerminalType(t *testing.T) {
	c := &Conn{}
	in := append([]byte{IAC, SB, OptTType, ttypeIS}, []byte("xterm-256color")...)
	c.parse(append(in, IAC, SE))

	if c.TerminalType() != "xterm-256color" {
		t.Errorf("Expected xterm-256color, got %q", c.TerminalType())
	}
}

// TestReadWithResize tests Read stripping protocol bytes and firing the resize callback
func TestReadWithResize(t *testing.T) {
	server, client := net.Pipe()
	defer func() { _ = client.Close() }()
	c := New(server)
	defer func() { _ = c.Close() }()

	resized := make(chan [2]int, 1)
	c.OnResize(func(cols, rows int) { resized <- [2]int{cols, rows} })

	go func() {
		_, _ = client.Write([]byte{IAC, SB, OptNAWS, 0, 100, 0, 30, IAC, SE})
		_, _ = client.Write([]byte("hi"))
	}()

	buf := make([]byte, 16)
	n, err := io.ReadAtLeast(c, buf, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Errorf("Expected hi, got %q", buf[:n])
	}

	select {
	case size := <-resized:
		if size != [2]int{100, 30} {
			t.Errorf("Expected 100x30, got %v", size)
		}
	case <-time.After(time.Second):
		t.Error("Expected resize callback")
	}
}
