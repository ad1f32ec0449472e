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

package conedit

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// DefaultHistorySize is the number of lines kept when Options.HistorySize is not set
const DefaultHistorySize = 1000

// History keeps submitted lines, newest last, optionally persisted to a file
// shared by every session.
type History struct {
	mu      sync.Mutex
	entries []string
	max     int
	file    string
}

// NewHistory creates a history of at most max lines. With a file it loads the
// existing lines; a missing file is not an error.
func NewHistory(file string, max int) (*History, error) {
	if max <= 0 {
		max = DefaultHistorySize
	}
	h := &History{max: max, file: file}
	if file == "" {
		return h, nil
	}

	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, errors.Wrap(err, "failed to open history file")
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		h.push(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return h, errors.Wrap(err, "failed to read history file")
	}
	return h, nil
}

// push reports whether the line was recorded. Blank lines and repeats of
// the newest line are not.
func (h *History) push(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == line {
		return false
	}
	h.entries = append(h.entries, line)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return true
}

// Add records a line and appends it to the history file
func (h *History) Add(line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.push(line) || h.file == "" {
		return nil
	}

	f, err := os.OpenFile(h.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "failed to open history file")
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(h.entries[len(h.entries)-1] + "\n"); err != nil {
		return errors.Wrap(err, "failed to write history file")
	}
	return nil
}

// Len returns the number of lines
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// At returns the line at index i, oldest first
func (h *History) At(i int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= len(h.entries) {
		return ""
	}
	return h.entries[i]
}
