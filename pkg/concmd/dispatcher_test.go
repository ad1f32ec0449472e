package concmd

import (
	"context"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/conregistry"
	"github.com/txn2/debugcon/pkg/consession"
)

type nopTransport struct{}

func (nopTransport) Read([]byte) (int, error)          { return 0, io.EOF }
func (nopTransport) Write(p []byte) (int, error)       { return len(p), nil }
func (nopTransport) RawWriter() io.Writer              { return io.Discard }
func (nopTransport) Close() error                      { return nil }
func (nopTransport) RemoteAddr() string                { return "192.0.2.1:4000" }
func (nopTransport) OnResize(func(cols, rows int))     {}

type fixture struct {
	ns       *conlog.Namespace
	ic       *conlog.Interceptor
	registry *conregistry.Registry
	d        *Dispatcher
}

func newFixture(cfg Config) *fixture {
	ns := conlog.NewNamespace()
	ic := conlog.NewInterceptor(ns, conlog.Options{Keep: 2})
	reg := conregistry.New()
	cfg.Interceptor = ic
	cfg.Registry = reg
	return &fixture{ns: ns, ic: ic, registry: reg, d: NewDispatcher(cfg)}
}

func (f *fixture) session() *consession.Session {
	s := consession.New(context.Background(), nopTransport{}, f.ic, f.registry, consession.Options{})
	f.registry.Add(s)
	return s
}

func (f *fixture) eval(t *testing.T, s *consession.Session, line string) interface{} {
	t.Helper()
	v, err := f.d.Eval(context.Background(), s, line)
	if err != nil {
		t.Fatalf("Eval(%q) returned error: %v", line, err)
	}
	return v
}

// TestWhoamiPath tests applying a property path to a command result
func TestWhoamiPath(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	if got := f.eval(t, s, "whoami.pid"); got != os.Getpid() {
		t.Errorf("Expected pid %d, got %v", os.Getpid(), got)
	}
	if got := f.eval(t, s, "whoami['goVersion']"); got == nil {
		t.Error("Expected a Go version")
	}

	if _, err := f.d.Eval(context.Background(), s, "whoami.nope"); errors.Cause(err) != ErrNoProperty {
		t.Errorf("Expected ErrNoProperty, got %v", err)
	}
}

// TestEvalJavaScript tests the generic evaluator
func TestEvalJavaScript(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	tests := []struct {
		line string
		want interface{}
	}{
		{"1+1", int64(2)},
		{"'a' + 'b'", "ab"},
		{"[1, 2].length", int64(2)},
		{"undefined", nil},
		{"null", nil},
		{"Promise.resolve(5)", int64(5)},
		{"(async () => 7)()", int64(7)},
	}

	for _, tt := range tests {
		if got := f.eval(t, s, tt.line); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Eval(%q) = %#v, want %#v", tt.line, got, tt.want)
		}
	}
}

// TestEvalErrors tests that failures come back as values
func TestEvalErrors(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	_, err := f.d.Eval(context.Background(), s, "notDefined")
	if err == nil || err.Error() != "ReferenceError: notDefined is not defined" {
		t.Errorf("Unexpected error %v", err)
	}

	if _, err := f.d.Eval(context.Background(), s, "Promise.reject(new Error('nope'))"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Expected rejection error, got %v", err)
	}

	if _, err := f.d.Eval(context.Background(), s, "new Promise(() => {})"); err != ErrPending {
		t.Errorf("Expected ErrPending, got %v", err)
	}

	if _, err := f.d.Eval(context.Background(), s, "throw 'plain'"); err == nil || err.Error() != "plain" {
		t.Errorf("Expected thrown value as error, got %v", err)
	}

	// the runtime survives errors
	if got := f.eval(t, s, "2*3"); got != int64(6) {
		t.Errorf("Expected 6, got %v", got)
	}
}

// TestKeepIsolation tests that scratch space is per session
func TestKeepIsolation(t *testing.T) {
	f := newFixture(Config{})
	a := f.session()
	b := f.session()

	f.eval(t, a, "keep.x = 5")

	if got := f.eval(t, a, "keep.x"); got != int64(5) {
		t.Errorf("Expected keep.x 5 in first session, got %v", got)
	}
	if got := f.eval(t, b, "keep.x"); got != nil {
		t.Errorf("Expected keep.x undefined in second session, got %v", got)
	}

	f.d.Reset(a)
	if got := f.eval(t, a, "keep.x"); got != nil {
		t.Errorf("Expected keep.x cleared after reset, got %v", got)
	}
}

// TestLastResult tests the _ binding
func TestLastResult(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	f.eval(t, s, "40 + 2")
	if got := f.eval(t, s, "_ + 1"); got != int64(43) {
		t.Errorf("Expected 43, got %v", got)
	}

	f.eval(t, s, "whoami")
	if got := f.eval(t, s, "_.pid"); got != int64(os.Getpid()) {
		t.Errorf("Expected command result bound to _, got %v", got)
	}
}

// TestKeysCommand tests listing keys of a result
func TestKeysCommand(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	got := f.eval(t, s, "keys whoami")
	want := []string{"exec", "goVersion", "path", "pid", "ppid", "user"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if got := f.eval(t, s, "keys [4, 5, 6]"); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Expected indices, got %v", got)
	}

	if got := f.eval(t, s, "keys ({b: 1, a: 2})"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected sorted object keys, got %v", got)
	}

	// without an expression keys is an ordinary identifier
	if _, err := f.d.Eval(context.Background(), s, "keys"); err == nil || err.Error() != "ReferenceError: keys is not defined" {
		t.Errorf("Expected bare keys to be evaluated as JavaScript, got %v", err)
	}
	f.eval(t, s, "var keys = 5")
	if got := f.eval(t, s, "keys"); got != int64(5) {
		t.Errorf("Expected the keys variable, got %v", got)
	}
}

// TestLogCommand tests mirroring toggles and buffer replay
func TestLogCommand(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	f.ns.Info("a")
	f.ns.Info("b")
	f.ns.Info("c")

	if got := f.eval(t, s, "log 1"); got != Text("c") {
		t.Errorf("Expected last line c, got %q", got)
	}
	if got := f.eval(t, s, "log"); got != Text("b\nc") {
		t.Errorf("Expected whole buffer, got %q", got)
	}

	if got := f.eval(t, s, "log on"); got != Text("log mirroring on") || !s.LogEnabled() {
		t.Errorf("Expected mirroring on, got %q", got)
	}
	if got := f.eval(t, s, "log off"); got != Text("log mirroring off") || s.LogEnabled() {
		t.Errorf("Expected mirroring off, got %q", got)
	}

	if _, err := f.d.Eval(context.Background(), s, "log loud"); err == nil {
		t.Error("Expected error for bad argument")
	}
}

// TestHelp tests the command listing and per-command help
func TestHelp(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	got := string(f.eval(t, s, "help").(Text))
	names := strings.Split(got, "\n")
	want := []string{"flush", "help", "ifconfig", "log", "print", "raise", "stat", "uptime", "wall", "who", "whoami"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected %v, got %v", want, names)
	}

	if got := f.eval(t, s, "help log"); !strings.HasPrefix(string(got.(Text)), "log [on|off|N]") {
		t.Errorf("Unexpected help text %q", got)
	}

	if _, err := f.d.Eval(context.Background(), s, "help nope"); err == nil {
		t.Error("Expected error for unknown command")
	}
}

// TestUptime tests the uptime line format
func TestUptime(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	got := string(f.eval(t, s, "uptime").(Text))
	re := regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2} up \S+, load average: \d+\.\d{2}, \d+\.\d{2}, \d+\.\d{2}$`)
	if !re.MatchString(got) {
		t.Errorf("Unexpected uptime %q", got)
	}
}

// TestStatAndIfconfig tests the shape of system information commands
func TestStatAndIfconfig(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	stat := f.eval(t, s, "stat").(map[string]interface{})
	for _, key := range []string{"rusage", "memory", "totalmem"} {
		if _, ok := stat[key]; !ok {
			t.Errorf("Expected %s in stat", key)
		}
	}

	if _, ok := f.eval(t, s, "ifconfig").(map[string]interface{}); !ok {
		t.Error("Expected ifconfig to return a map")
	}
}

// TestWhoAndWall tests session listing and broadcast without peers
func TestWhoAndWall(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	who := string(f.eval(t, s, "who").(Text))
	for _, want := range []string{"REMOTE", "CONNECTED", "USER", "LOG", "192.0.2.1:4000", "*", "anonymous", "off"} {
		if !strings.Contains(who, want) {
			t.Errorf("Expected %q in:\n%s", want, who)
		}
	}

	if got := f.eval(t, s, "wall hello"); got != Text("wall: sent to 0 session(s)") {
		t.Errorf("Unexpected wall result %q", got)
	}
	if _, err := f.d.Eval(context.Background(), s, "wall"); err == nil {
		t.Error("Expected error for empty wall message")
	}
}

// TestRequireAndFlush tests the shared module cache
func TestRequireAndFlush(t *testing.T) {
	builds := 0
	f := newFixture(Config{Modules: map[string]ModuleFactory{
		"svc": func() interface{} {
			builds++
			return map[string]interface{}{"id": builds}
		},
	}})
	a := f.session()
	b := f.session()

	if got := f.eval(t, a, "require('svc').id"); got != int64(1) {
		t.Errorf("Expected first instance, got %v", got)
	}
	if got := f.eval(t, b, "require('svc').id"); got != int64(1) {
		t.Errorf("Expected shared instance, got %v", got)
	}

	if got := f.eval(t, a, "flush svc"); got != Text("flushed svc") {
		t.Errorf("Unexpected flush result %q", got)
	}
	if got := f.eval(t, b, "require('svc').id"); got != int64(2) {
		t.Errorf("Expected fresh instance after flush, got %v", got)
	}

	if _, err := f.d.Eval(context.Background(), a, "flush other"); err == nil {
		t.Error("Expected error flushing an unloaded module")
	}
	if _, err := f.d.Eval(context.Background(), a, "require('missing')"); err == nil {
		t.Error("Expected error requiring an unknown module")
	}
}

// TestCustomCommand tests registering commands
func TestCustomCommand(t *testing.T) {
	f := newFixture(Config{Commands: []Command{{
		Name: "echo",
		Help: "echo <text>",
		Handler: func(_ context.Context, args string, _ *Env) (interface{}, error) {
			return map[string]interface{}{"said": args}, nil
		},
	}}})
	s := f.session()

	if got := f.eval(t, s, "echo hi there"); !reflect.DeepEqual(got, map[string]interface{}{"said": "hi there"}) {
		t.Errorf("Unexpected result %v", got)
	}
	if got := f.eval(t, s, "echo.said"); got != "" {
		t.Errorf("Expected empty args with a path, got %v", got)
	}

	// a command name glued to an operator is JavaScript
	if _, err := f.d.Eval(context.Background(), s, "echo+1"); err == nil {
		t.Error("Expected ReferenceError for echo+1")
	}

	if got := f.d.Complete("e"); !reflect.DeepEqual(got, []string{"echo"}) {
		t.Errorf("Unexpected completion %v", got)
	}
	if got := f.d.Complete("k"); !reflect.DeepEqual(got, []string{"keys"}) {
		t.Errorf("Unexpected completion %v", got)
	}
}

// TestPrint tests rendering an expression with colors
func TestPrint(t *testing.T) {
	f := newFixture(Config{})
	s := f.session()

	if got := f.eval(t, s, "print 'plain'"); got != Text("plain") {
		t.Errorf("Expected plain string, got %q", got)
	}
	if got := string(f.eval(t, s, "print ({a: {b: 1}})").(Text)); !strings.Contains(got, "\x1b[") {
		t.Errorf("Expected colored output, got %q", got)
	}
}

// TestFormat tests the result writer
func TestFormat(t *testing.T) {
	format := Format(false)

	tests := []struct {
		result interface{}
		err    error
		want   string
	}{
		{nil, nil, ""},
		{Text("as is\n"), nil, "as is\n"},
		{"quoted", nil, `"quoted"`},
		{int64(2), nil, "2"},
		{nil, errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		if got := format(tt.result, tt.err); got != tt.want {
			t.Errorf("Format(%v, %v) = %q, want %q", tt.result, tt.err, got, tt.want)
		}
	}
}
