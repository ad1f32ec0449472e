package conregistry

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/consession"
)

type nopTransport struct {
	io.Reader
}

func (nopTransport) Write(p []byte) (int, error) { return len(p), nil }
func (nopTransport) RawWriter() io.Writer         { return io.Discard }
func (nopTransport) Close() error                 { return nil }
func (nopTransport) RemoteAddr() string           { return "127.0.0.1:1" }
func (nopTransport) OnResize(func(int, int))      {}

func newSession(r *Registry) *consession.Session {
	ic := conlog.NewInterceptor(conlog.NewNamespace(), conlog.Options{})
	return consession.New(context.Background(), nopTransport{strings.NewReader("")}, ic, r, consession.Options{})
}

// TestAddRemove tests registering and unregistering sessions
func TestAddRemove(t *testing.T) {
	r := New()
	s := newSession(r)

	r.Add(s)
	if r.Len() != 1 {
		t.Fatalf("Expected 1 session, got %d", r.Len())
	}
	if r.Get(s.ID) != s {
		t.Error("Expected Get to return the session")
	}

	if !r.Remove(s) {
		t.Error("Expected first removal to succeed")
	}
	if r.Remove(s) {
		t.Error("Expected second removal to report a miss")
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

// TestList tests ordering by connection time
func TestList(t *testing.T) {
	r := New()
	first := newSession(r)
	second := newSession(r)
	second.ConnectedAt = first.ConnectedAt.Add(time.Second)

	r.Add(second)
	r.Add(first)

	list := r.List()
	if len(list) != 2 || list[0] != first || list[1] != second {
		t.Errorf("Expected oldest session first")
	}
}

// TestCloseAll tests that closing sessions empties the registry
func TestCloseAll(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		r.Add(newSession(r))
	}

	r.CloseAll()

	if r.Len() != 0 {
		t.Errorf("Expected sessions to remove themselves, got %d", r.Len())
	}
}
