package conserver

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/txn2/debugcon/pkg/concmd"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/consession"
)

// client is a telnet client that keeps everything the server sent
type client struct {
	conn net.Conn
	mu   sync.Mutex
	buf  bytes.Buffer
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	c := &client{conn: conn}
	go func() {
		b := make([]byte, 512)
		for {
			n, err := conn.Read(b)
			c.mu.Lock()
			c.buf.Write(b[:n])
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *client) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		t.Fatalf("Failed to send %q: %v", line, err)
	}
}

func (c *client) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// waitFor waits until the output contains want
func (c *client) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(c.output(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %q, got %q", want, c.output())
}

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Namespace == nil {
		opts.Namespace = conlog.NewNamespace()
	}
	opts.Host = "127.0.0.1"
	s, err := Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestEndToEnd tests buffering, the log command and mirroring over telnet
func TestEndToEnd(t *testing.T) {
	ns := conlog.NewNamespace()
	s := startServer(t, Options{Keep: 2, Namespace: ns})

	ns.Info("a")
	ns.Info("b")
	ns.Info("c")

	last := s.Interceptor().Last(2)
	if len(last) != 2 || last[0].Args[0] != "b" || last[1].Args[0] != "c" {
		t.Fatalf("Expected [b c], got %+v", last)
	}

	c := dial(t, s.Addr())
	c.waitFor(t, "> ")

	c.send(t, "log 1")
	c.waitFor(t, "\r\nc\r\n> ")

	c.send(t, "log on")
	c.waitFor(t, "log mirroring on")

	ns.Warn("live", 7)
	c.waitFor(t, "live 7\r\n")

	if s.Registry().Len() != 1 {
		t.Errorf("Expected 1 registered session, got %d", s.Registry().Len())
	}

	c.send(t, ".exit")
	deadline := time.Now().Add(5 * time.Second)
	for s.Registry().Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Registry().Len() != 0 {
		t.Error("Expected the session to unregister after .exit")
	}
}

// TestMirrorDefault tests that new sessions mirror when Mirror is set
func TestMirrorDefault(t *testing.T) {
	ns := conlog.NewNamespace()
	s := startServer(t, Options{Namespace: ns, Mirror: true})

	c := dial(t, s.Addr())
	c.waitFor(t, "> ")

	deadline := time.Now().Add(5 * time.Second)
	for s.Registry().Len() == 0 || s.Registry().List()[0].State() != consession.StateActive {
		if time.Now().After(deadline) {
			t.Fatal("Session never became active")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ns.Error("boom")
	c.waitFor(t, "boom\r\n")
}

// TestLogin tests that sessions authenticate before the prompt
func TestLogin(t *testing.T) {
	s := startServer(t, Options{Auth: consession.PasswordTable{"admin": "secret"}})

	c := dial(t, s.Addr())
	c.waitFor(t, "login: ")
	c.send(t, "admin")
	c.waitFor(t, "password: ")
	c.send(t, "secret")
	c.waitFor(t, "> ")

	c.send(t, "who")
	c.waitFor(t, "USER")
	if strings.Contains(c.output(), "secret") {
		t.Error("Password was echoed")
	}
	sessions := s.Registry().List()
	if len(sessions) != 1 || sessions[0].Identity() != "admin" {
		t.Errorf("Expected one session for admin, got %d", len(sessions))
	}
}

// TestCustomCommand tests commands supplied through Options
func TestCustomCommand(t *testing.T) {
	s := startServer(t, Options{
		Commands: []concmd.Command{{
			Name: "ping",
			Handler: func(context.Context, string, *concmd.Env) (interface{}, error) {
				return concmd.Text("pong"), nil
			},
		}},
	})

	c := dial(t, s.Addr())
	c.waitFor(t, "> ")
	c.send(t, "ping")
	c.waitFor(t, "pong\r\n")
}

// TestClose tests that Close restores the namespace and disconnects clients
func TestClose(t *testing.T) {
	ns := conlog.NewNamespace()
	s := startServer(t, Options{Namespace: ns})

	c := dial(t, s.Addr())
	c.waitFor(t, "> ")

	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second close returned %v", err)
	}

	before := s.Interceptor().Len()
	ns.Info("after close")
	if s.Interceptor().Len() != before {
		t.Error("Expected the namespace to be restored")
	}
	if s.Registry().Len() != 0 {
		t.Errorf("Expected no sessions, got %d", s.Registry().Len())
	}

	if _, err := net.DialTimeout("tcp", s.Addr(), time.Second); err == nil {
		t.Error("Expected the listener to be closed")
	}
}

// TestContextCancel tests that cancelling the start context stops the server
func TestContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := Start(ctx, Options{Host: "127.0.0.1", Namespace: conlog.NewNamespace()})
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	addr := s.Addr()
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return
		}
		_ = conn.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Expected the listener to close after cancel")
}

// TestStandardLogger tests capture of direct logrus calls and hook removal
func TestStandardLogger(t *testing.T) {
	out := log.StandardLogger().Out
	log.SetOutput(io.Discard)
	defer log.SetOutput(out)

	s, err := Start(context.Background(), Options{Port: -1})
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if s.Addr() != "" {
		t.Errorf("Expected no listener, got %s", s.Addr())
	}

	log.WithField("id", 3).Warn("direct")
	conlog.Std().Warn("through namespace")

	var texts []string
	for _, e := range s.Interceptor().All() {
		texts = append(texts, e.Text(false))
	}
	want := "direct id=3|through namespace"
	if strings.Join(texts, "|") != want {
		t.Errorf("Expected %q, got %q", want, strings.Join(texts, "|"))
	}

	_ = s.Close()
	for _, hooks := range log.StandardLogger().Hooks {
		for _, h := range hooks {
			if _, ok := h.(*conlog.Hook); ok {
				t.Fatal("Expected the hook to be removed")
			}
		}
	}
}

// TestAPI tests that the API serves the console's buffer
func TestAPI(t *testing.T) {
	ns := conlog.NewNamespace()
	s := startServer(t, Options{Port: -1, Namespace: ns, APIAddr: "127.0.0.1:0"})

	ns.Info("over http")

	resp, err := http.Get("http://" + s.APIAddr() + "/api/v1/logs")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "over http") {
		t.Errorf("Expected the buffered event, got %s", body)
	}
}
