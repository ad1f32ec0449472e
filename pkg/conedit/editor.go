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

// Package conedit is a small line editor for raw terminal streams. It keeps
// the edited line, cursor and rendered position so that other writers can
// erase and restore the prompt around their own output.
package conedit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultPrompt is used when Options.Prompt is empty
const DefaultPrompt = "> "

const interruptHint = "(To exit, press ^D or type .exit)"

// EvalFunc evaluates one submitted line
type EvalFunc func(ctx context.Context, line string) (interface{}, error)

// Options configures an Editor
type Options struct {
	Prompt string

	// Eval is called with every non-empty submitted line
	Eval EvalFunc

	// Writer turns an evaluation result into display text
	Writer func(result interface{}, err error) string

	// Completer returns candidates for the first word of the line
	Completer func(prefix string) []string

	// History may be shared by several editors
	History *History

	// OnReset is called for ".clear"
	OnReset func()

	// OnExit is called for ".exit" and ^D on an empty line
	OnExit func()
}

// Editor reads keystrokes from a raw stream and echoes an editable line.
//
// Pause locks the editor; Prompt, Line, Pos, CursorPosition, Redrawn and
// CursorLeft read or move editor state without locking and must only be
// called between Pause and Resume.
type Editor struct {
	mu   sync.Mutex
	in   *bufio.Reader
	out  io.Writer
	opts Options

	line []rune
	pos  int
	cols int

	// cursor is the display column of the terminal cursor counted from the
	// start of the prompt. It does not depend on line, which may be replaced
	// before the old contents are erased.
	cursor int

	// prompted is false while a submitted line is evaluated
	prompted bool

	histIdx int
	draft   []rune
}

// New creates an editor reading from in and echoing to out
func New(in io.Reader, out io.Writer, opts Options) *Editor {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.Writer == nil {
		opts.Writer = DefaultWriter
	}
	if opts.History == nil {
		opts.History, _ = NewHistory("", 0)
	}
	return &Editor{
		in:      bufio.NewReader(in),
		out:     out,
		opts:    opts,
		histIdx: opts.History.Len(),
	}
}

// DefaultWriter prints errors with their message and values with %v
func DefaultWriter(result interface{}, err error) string {
	if err != nil {
		return err.Error()
	}
	if result == nil {
		return ""
	}
	return fmt.Sprint(result)
}

// Run writes the prompt and processes keystrokes until the user exits or the
// stream fails. The end of the stream is not an error.
func (e *Editor) Run(ctx context.Context) error {
	e.mu.Lock()
	e.showPrompt()
	e.mu.Unlock()

	for {
		k, err := readKey(e.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "failed to read keystroke")
		}

		line, submit, exit := e.handle(k)

		if exit {
			e.exit()
			return nil
		}
		if submit && e.submit(ctx, line) {
			e.exit()
			return nil
		}
	}
}

func (e *Editor) exit() {
	if e.opts.OnExit != nil {
		e.opts.OnExit()
	}
}

// submit evaluates a line and prints its result followed by a fresh prompt.
// It reports whether the line asked to exit.
func (e *Editor) submit(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	var out string

	switch trimmed {
	case "":
	case ".exit":
		return true
	case ".clear":
		if e.opts.OnReset != nil {
			e.opts.OnReset()
		}
		out = "Clearing context..."
	default:
		if err := e.opts.History.Add(trimmed); err != nil {
			log.Warnf("History error: %s", err.Error())
		}
		if e.opts.Eval != nil {
			out = e.opts.Writer(e.opts.Eval(ctx, line))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if out != "" {
		e.write(strings.ReplaceAll(out, "\n", "\r\n") + "\r\n")
	}
	e.histIdx = e.opts.History.Len()
	e.showPrompt()
	return false
}

func (e *Editor) handle(k key) (string, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(k)
}

// apply handles one key with the lock held
func (e *Editor) apply(k key) (line string, submit bool, exit bool) {
	switch k.kind {
	case keyRune:
		e.insert([]rune{k.r})
	case keyEnter:
		line = string(e.line)
		e.write(e.leave())
		e.line, e.pos, e.cursor, e.prompted = nil, 0, 0, false
		return line, true, false
	case keyBackspace:
		if e.pos > 0 {
			e.line = append(e.line[:e.pos-1], e.line[e.pos:]...)
			e.pos--
			e.refresh()
		}
	case keyDelete:
		e.deleteAtCursor()
	case keyEOF:
		if len(e.line) == 0 {
			e.write("\r\n")
			return "", false, true
		}
		e.deleteAtCursor()
	case keyLeft:
		if e.pos > 0 {
			e.pos--
			e.write(e.movement(e.pos))
		}
	case keyRight:
		if e.pos < len(e.line) {
			e.pos++
			e.write(e.movement(e.pos))
		}
	case keyHome:
		e.pos = 0
		e.write(e.movement(e.pos))
	case keyEnd:
		e.pos = len(e.line)
		e.write(e.movement(e.pos))
	case keyUp:
		e.historyMove(-1)
	case keyDown:
		e.historyMove(1)
	case keyTab:
		e.complete()
	case keyInterrupt:
		out := "^C\r\n"
		if len(e.line) == 0 {
			out += interruptHint + "\r\n"
		}
		e.write(e.movement(len(e.line)) + out)
		e.line, e.pos = nil, 0
		e.showPrompt()
	case keyKillEnd:
		e.line = e.line[:e.pos]
		e.refresh()
	case keyKillStart:
		e.line = append([]rune(nil), e.line[e.pos:]...)
		e.pos = 0
		e.refresh()
	case keyKillWord:
		start := e.pos
		for start > 0 && e.line[start-1] == ' ' {
			start--
		}
		for start > 0 && e.line[start-1] != ' ' {
			start--
		}
		e.line = append(e.line[:start], e.line[e.pos:]...)
		e.pos = start
		e.refresh()
	case keyClearScreen:
		e.write(ansi.EraseEntireScreen + ansi.CursorHomePosition)
		e.cursor = 0
		e.render()
	}
	return "", false, false
}

func (e *Editor) insert(runes []rune) {
	tail := append([]rune(nil), e.line[e.pos:]...)
	e.line = append(append(e.line[:e.pos], runes...), tail...)
	e.pos += len(runes)

	if len(tail) == 0 && e.cursor == e.offset(e.pos-len(runes)) {
		e.write(string(runes))
		e.cursor = e.offset(e.pos)
		e.settle()
		return
	}
	e.refresh()
}

func (e *Editor) deleteAtCursor() {
	if e.pos < len(e.line) {
		e.line = append(e.line[:e.pos], e.line[e.pos+1:]...)
		e.refresh()
	}
}

// historyMove steps through history; the unfinished line is kept as a draft
func (e *Editor) historyMove(delta int) {
	n := e.opts.History.Len()
	next := e.histIdx + delta
	if next < 0 || next > n {
		return
	}
	if e.histIdx == n {
		e.draft = append([]rune(nil), e.line...)
	}
	e.histIdx = next

	if next == n {
		e.line = append([]rune(nil), e.draft...)
	} else {
		e.line = []rune(e.opts.History.At(next))
	}
	e.pos = len(e.line)
	e.refresh()
}

// complete expands the first word of the line
func (e *Editor) complete() {
	if e.opts.Completer == nil {
		return
	}
	prefix := string(e.line[:e.pos])
	if strings.ContainsAny(prefix, " .[(") {
		return
	}

	matches := e.opts.Completer(prefix)
	switch len(matches) {
	case 0:
		return
	case 1:
		e.insert([]rune(strings.TrimPrefix(matches[0], prefix) + " "))
		return
	}

	if common := commonPrefix(matches); len(common) > len(prefix) {
		e.insert([]rune(common[len(prefix):]))
		return
	}

	e.write(e.leave() + strings.Join(matches, "  ") + "\r\n")
	e.cursor = 0
	e.render()
}

func commonPrefix(words []string) string {
	prefix := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

// offset returns the display column of rune index i counted from the prompt start
func (e *Editor) offset(i int) int {
	return e.promptWidth() + runewidth.StringWidth(string(e.line[:i]))
}

func (e *Editor) promptWidth() int {
	if !e.prompted {
		return 0
	}
	return ansi.StringWidth(e.opts.Prompt)
}

// showPrompt writes the prompt at the start of an empty row
func (e *Editor) showPrompt() {
	e.prompted = true
	e.write(e.opts.Prompt)
	e.cursor = e.promptWidth()
	e.settle()
}

// leave moves the terminal cursor to the start of the row below the line
func (e *Editor) leave() string {
	move := e.movement(len(e.line))
	if e.cols > 0 && e.cursor > 0 && e.cursor%e.cols == 0 {
		return move
	}
	return move + "\r\n"
}

// settle moves a cursor left in the last column by a full row of output to
// the start of the next row, where the column arithmetic puts it
func (e *Editor) settle() {
	if e.cols > 0 && e.cursor > 0 && e.cursor%e.cols == 0 {
		e.write("\r\n")
	}
}

func (e *Editor) split(off int) (row, col int) {
	if e.cols <= 0 {
		return 0, off
	}
	return off / e.cols, off % e.cols
}

// movement returns the sequence moving the terminal cursor to rune index target
func (e *Editor) movement(target int) string {
	fromRow, fromCol := e.split(e.cursor)
	to := e.offset(target)
	toRow, toCol := e.split(to)
	e.cursor = to

	var b strings.Builder
	switch {
	case toRow < fromRow:
		b.WriteString(ansi.CursorUp(fromRow - toRow))
	case toRow > fromRow:
		b.WriteString(ansi.CursorDown(toRow - fromRow))
	}
	switch {
	case toCol < fromCol:
		b.WriteString(ansi.CursorBackward(fromCol - toCol))
	case toCol > fromCol:
		b.WriteString(ansi.CursorForward(toCol - fromCol))
	}
	return b.String()
}

// refresh erases the prompt area and draws it again
func (e *Editor) refresh() {
	var b strings.Builder
	if row, _ := e.CursorPosition(); row > 0 {
		b.WriteString(ansi.CursorUp(row))
	}
	b.WriteString("\r")
	b.WriteString(ansi.EraseScreenBelow)
	e.write(b.String())
	e.cursor = 0
	e.render()
}

// render draws prompt and line from the start of the prompt area
func (e *Editor) render() {
	e.write(e.Prompt() + string(e.line))
	e.cursor = e.offset(len(e.line))
	e.settle()
	e.write(e.movement(e.pos))
}

func (e *Editor) write(s string) {
	if s == "" {
		return
	}
	_, _ = io.WriteString(e.out, s)
}

// Refresh redraws the line, for example after the terminal was resized
func (e *Editor) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refresh()
}

// SetColumns sets the terminal width used for cursor arithmetic
func (e *Editor) SetColumns(cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cols = cols
}

// Pause blocks keystroke processing until Resume
func (e *Editor) Pause() {
	e.mu.Lock()
}

// Resume continues keystroke processing
func (e *Editor) Resume() {
	e.mu.Unlock()
}

// Prompt returns the prompt on screen. It is empty while a submitted line
// is evaluated.
func (e *Editor) Prompt() string {
	if !e.prompted {
		return ""
	}
	return e.opts.Prompt
}

// Line returns the line being edited
func (e *Editor) Line() string {
	return string(e.line)
}

// Pos returns the cursor offset within the line, in runes
func (e *Editor) Pos() int {
	return e.pos
}

// CursorPosition returns the row and column of the terminal cursor relative
// to the start of the prompt
func (e *Editor) CursorPosition() (row, col int) {
	return e.split(e.cursor)
}

// Redrawn tells the editor that Prompt and Line were written again from the
// start of a row, leaving the terminal cursor at the end of the line
func (e *Editor) Redrawn() {
	e.cursor = e.offset(len(e.line))
	e.settle()
}

// CursorLeft moves the terminal cursor one character left
func (e *Editor) CursorLeft() {
	for i := len(e.line); i >= 0; i-- {
		if e.offset(i) < e.cursor {
			e.write(e.movement(i))
			return
		}
	}
}
