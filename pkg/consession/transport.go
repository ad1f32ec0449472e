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

import "io"

// Transport is the byte stream a session talks over
type Transport interface {
	io.ReadWriter

	// RawWriter bypasses any protocol escaping of Write
	RawWriter() io.Writer
	Close() error
	RemoteAddr() string

	// OnResize registers a callback for terminal size changes
	OnResize(func(cols, rows int))
}

// RawMode is implemented by transports that can switch the remote terminal
// to character-at-a-time input with server-side echo
type RawMode interface {
	EnableRawMode() error
	DisableRawMode() error
}

// LineEditor is the view of the line editor a Redraw needs. Every method
// except Pause and Resume is called between Pause and Resume.
type LineEditor interface {
	Prompt() string
	Line() string
	Pos() int
	CursorPosition() (row, col int)
	Redrawn()
	CursorLeft()
	Pause()
	Resume()
}

// Registry tracks live sessions
type Registry interface {
	Add(s *Session)

	// Remove reports whether the session was registered
	Remove(s *Session) bool
}
