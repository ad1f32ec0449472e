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

// Package consession runs one interactive console session: optional login,
// a line editor feeding an evaluator, and live log output drawn above the
// prompt without disturbing what the user is typing.
package consession

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/txn2/debugcon/pkg/conedit"
	"github.com/txn2/debugcon/pkg/conlog"
	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultQueueSize is the per-session log queue length
const DefaultQueueSize = 256

// State is a session lifecycle stage
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Options configures a Session
type Options struct {
	// Auth enables the login prompt when set
	Auth       Authenticator
	EmptyLogin EmptyLoginPolicy

	// Identity is the user name of sessions without Auth
	Identity string

	// Mirror turns log output on for new sessions
	Mirror bool
	Colors bool

	Prompt    string
	History   *conedit.History
	Eval      func(ctx context.Context, s *Session, line string) (interface{}, error)
	Writer    func(result interface{}, err error) string
	Completer func(prefix string) []string
	OnReset   func(s *Session)

	// QueueSize bounds log events waiting to be drawn
	QueueSize int

	Backoff wait.Backoff
	Sleep   func(ctx context.Context, d time.Duration) error

	// Debouncer delays redraws after terminal resizes
	Debouncer func(f func())
}

// Session is one connected console client
type Session struct {
	ID          string
	ConnectedAt time.Time

	transport   Transport
	interceptor *conlog.Interceptor
	registry    Registry
	opts        Options
	reader      *bufio.Reader
	out         *safeWriter

	ctx    context.Context
	cancel context.CancelFunc

	state         atomic.Int32
	logSuppressed atomic.Bool
	dropped       atomic.Uint64
	cols          atomic.Int32
	logCh         chan conlog.Event
	scratch       sync.Map

	// mu guards the fields set when the session becomes active
	mu          sync.Mutex
	identity    string
	editor      *conedit.Editor
	redraw      *Redraw
	unsubscribe conlog.UnsubscribeFunc

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New creates a session over t. The session is not started until Run.
func New(ctx context.Context, t Transport, ic *conlog.Interceptor, reg Registry, opts Options) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Backoff.Duration == 0 {
		opts.Backoff = LoginBackoff()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Debouncer == nil {
		opts.Debouncer = debounce.New(100 * time.Millisecond)
	}
	if opts.Writer == nil {
		opts.Writer = conedit.DefaultWriter
	}
	if opts.Identity == "" {
		opts.Identity = "anonymous"
	}

	s := &Session{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		transport:   t,
		interceptor: ic,
		registry:    reg,
		opts:        opts,
		reader:      bufio.NewReader(t),
		logCh:       make(chan conlog.Event, opts.QueueSize),
		identity:    opts.Identity,
		done:        make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.out = &safeWriter{s: s, w: t}
	s.logSuppressed.Store(true)
	return s
}

// Run drives the session until the client leaves, then cleans up. A panic
// while serving the client ends only this session.
func (s *Session) Run() (err error) {
	defer func() { _ = s.Close() }()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Console session %s panic recovered: %v", s.RemoteAddr(), r)
			err = errors.Errorf("console session panicked: %v", r)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = s.Close()
	}()

	if rm, ok := s.transport.(RawMode); ok {
		if err := rm.EnableRawMode(); err != nil {
			return errors.Wrap(err, "failed to enable raw mode")
		}
	}
	s.transport.OnResize(s.resize)

	if s.opts.Auth != nil {
		s.setState(StateAuthenticating)
		if err := s.login(); err != nil {
			if errors.Is(err, ErrLoginAborted) || s.closing() {
				return nil
			}
			return err
		}
	}

	editor := conedit.New(s.reader, s.out, conedit.Options{
		Prompt:    s.opts.Prompt,
		Eval:      s.eval,
		Writer:    s.opts.Writer,
		Completer: s.opts.Completer,
		History:   s.opts.History,
		OnReset:   s.reset,
		OnExit:    func() { log.Debugf("Console session %s exit", s.RemoteAddr()) },
	})
	editor.SetColumns(int(s.cols.Load()))

	s.mu.Lock()
	s.editor = editor
	s.redraw = NewRedraw(editor, s.out)
	s.mu.Unlock()

	unsubscribe := s.interceptor.SubscribeAll(s.handleLog)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	if s.closing() {
		unsubscribe()
		return nil
	}

	s.logSuppressed.Store(!s.opts.Mirror)
	s.setState(StateActive)
	go s.pump()

	err = editor.Run(s.ctx)
	if err != nil && s.closing() {
		return nil
	}
	return err
}

func (s *Session) eval(ctx context.Context, line string) (interface{}, error) {
	if s.opts.Eval == nil {
		return nil, nil
	}
	return s.opts.Eval(ctx, s, line)
}

func (s *Session) reset() {
	if s.opts.OnReset != nil {
		s.opts.OnReset(s)
	}
}

// handleLog runs on the logging goroutine and must not block
func (s *Session) handleLog(_ conlog.Level, e conlog.Event) {
	if s.logSuppressed.Load() || s.State() != StateActive {
		return
	}
	select {
	case s.logCh <- e:
	default:
		s.dropped.Add(1)
	}
}

// pump draws queued log events until the session ends
func (s *Session) pump() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Console session %s log output panic recovered: %v", s.RemoteAddr(), r)
			_ = s.Close()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case e := <-s.logCh:
			if s.logSuppressed.Load() {
				continue
			}
			if err := s.redraw.Write(e.Text(s.opts.Colors)); err != nil {
				return
			}
		}
	}
}

func (s *Session) resize(cols, _ int) {
	s.cols.Store(int32(cols))

	s.mu.Lock()
	editor := s.editor
	s.mu.Unlock()
	if editor == nil {
		return
	}

	editor.SetColumns(cols)
	s.opts.Debouncer(func() {
		if s.State() == StateActive {
			editor.Refresh()
		}
	})
}

// Notify writes text above the prompt of an active session
func (s *Session) Notify(text string) error {
	if s.State() != StateActive {
		return ErrClosed
	}
	s.mu.Lock()
	redraw := s.redraw
	s.mu.Unlock()
	return redraw.Write(text)
}

// Close ends the session. Only the first call has an effect: it stops log
// delivery, leaves the registry and closes the transport.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.cancel()

		s.mu.Lock()
		unsubscribe := s.unsubscribe
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}

		if s.registry != nil {
			s.registry.Remove(s)
		}

		if rm, ok := s.transport.(RawMode); ok {
			_ = rm.DisableRawMode()
		}
		s.closeErr = s.transport.Close()
		s.setState(StateClosed)
		close(s.done)
		log.Debugf("Console session %s closed", s.RemoteAddr())
	})
	return s.closeErr
}

// Done is closed once the session is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closing() bool {
	return s.State() >= StateClosing
}

func (s *Session) setState(state State) {
	for {
		current := s.state.Load()
		// never move backwards out of closing
		if State(current) >= StateClosing && state < State(current) {
			return
		}
		if s.state.CompareAndSwap(current, int32(state)) {
			return
		}
	}
}

// State returns the lifecycle stage
func (s *Session) State() State {
	return State(s.state.Load())
}

// print writes raw session output; failures close the session
func (s *Session) print(text string) {
	_, _ = io.WriteString(s.out, text)
}

// Context is cancelled when the session closes
func (s *Session) Context() context.Context {
	return s.ctx
}

// RemoteAddr returns the client address
func (s *Session) RemoteAddr() string {
	return s.transport.RemoteAddr()
}

// Identity returns the logged-in user
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Session) setIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

// LogEnabled reports whether log output is mirrored to this session
func (s *Session) LogEnabled() bool {
	return !s.logSuppressed.Load()
}

// SetLogEnabled turns log mirroring on or off
func (s *Session) SetLogEnabled(enabled bool) {
	s.logSuppressed.Store(!enabled)
}

// Dropped returns the number of log events discarded because the queue was full
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// Colors reports whether output may carry ANSI colors
func (s *Session) Colors() bool {
	return s.opts.Colors
}

// Load returns a per-session value stored by Store
func (s *Session) Load(key interface{}) (interface{}, bool) {
	return s.scratch.Load(key)
}

// Store keeps a per-session value
func (s *Session) Store(key, value interface{}) {
	s.scratch.Store(key, value)
}

// Delete removes a per-session value
func (s *Session) Delete(key interface{}) {
	s.scratch.Delete(key)
}
