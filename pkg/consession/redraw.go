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
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Redraw writes text above a live prompt. It erases the prompt area, writes
// the text, then puts back the prompt, the edited line and the cursor.
// Writes are serialized; the editor is paused for the whole sequence.
type Redraw struct {
	mu     sync.Mutex
	editor LineEditor
	out    io.Writer
}

// NewRedraw creates a coordinator for editor writing to out
func NewRedraw(editor LineEditor, out io.Writer) *Redraw {
	return &Redraw{editor: editor, out: out}
}

// Write prints args joined by single spaces on lines of their own
func (r *Redraw) Write(args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.editor.Pause()
	defer r.editor.Resume()

	var b strings.Builder
	if row, _ := r.editor.CursorPosition(); row > 0 {
		b.WriteString(ansi.CursorUp(row))
	}
	b.WriteString("\r")
	b.WriteString(ansi.EraseScreenBelow)
	b.WriteString(strings.ReplaceAll(strings.Join(args, " "), "\n", "\r\n"))
	b.WriteString("\r\n")
	if _, err := io.WriteString(r.out, b.String()); err != nil {
		return err
	}

	// the erase above also took the prompt, so it is put back even when
	// nothing was typed
	line, pos := r.editor.Line(), r.editor.Pos()
	if restore := r.editor.Prompt() + line; restore != "" {
		if _, err := io.WriteString(r.out, restore); err != nil {
			return err
		}
	}
	r.editor.Redrawn()
	for i := len([]rune(line)) - pos; i > 0; i-- {
		r.editor.CursorLeft()
	}
	return nil
}
