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

package consession

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// LocalTerminal is a Transport over the process's own terminal
type LocalTerminal struct {
	in  *os.File
	out *os.File

	mu       sync.Mutex
	state    *term.State
	stop     func()
	closed   bool
	onResize func(cols, rows int)
}

// NewLocalTerminal creates a transport over stdin and stdout
func NewLocalTerminal() *LocalTerminal {
	return &LocalTerminal{in: os.Stdin, out: os.Stdout}
}

// Read reads keystrokes from the terminal
func (t *LocalTerminal) Read(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	return t.in.Read(p)
}

// Write writes to the terminal
func (t *LocalTerminal) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

// RawWriter returns the terminal output; there is no escaping to bypass
func (t *LocalTerminal) RawWriter() io.Writer {
	return t.out
}

// RemoteAddr names the local terminal
func (t *LocalTerminal) RemoteAddr() string {
	return "local"
}

// EnableRawMode puts the terminal into raw mode
func (t *LocalTerminal) EnableRawMode() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != nil || !term.IsTerminal(int(t.in.Fd())) {
		return nil
	}
	state, err := term.MakeRaw(int(t.in.Fd()))
	if err != nil {
		return errors.Wrap(err, "failed to enter raw mode")
	}
	t.state = state
	return nil
}

// DisableRawMode restores the terminal state saved by EnableRawMode
func (t *LocalTerminal) DisableRawMode() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == nil {
		return nil
	}
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	return errors.Wrap(err, "failed to restore terminal")
}

// OnResize reports the current size to fn now and again on every change
func (t *LocalTerminal) OnResize(fn func(cols, rows int)) {
	t.mu.Lock()
	t.onResize = fn
	if t.stop == nil {
		t.stop = watchResize(t.resized)
	}
	t.mu.Unlock()

	t.resized()
}

func (t *LocalTerminal) resized() {
	t.mu.Lock()
	fn := t.onResize
	t.mu.Unlock()

	if fn == nil {
		return
	}
	cols, rows, err := term.GetSize(int(t.out.Fd()))
	if err != nil {
		return
	}
	fn(cols, rows)
}

// Close stops resize notifications and leaves raw mode. Stdin and stdout
// stay open.
func (t *LocalTerminal) Close() error {
	t.mu.Lock()
	t.closed = true
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	return t.DisableRawMode()
}
