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

// Package concmd evaluates console input: named commands first, then
// JavaScript in a per-session runtime.
package concmd

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/conregistry"
	"github.com/txn2/debugcon/pkg/consession"
)

// Text is a command result printed exactly as is
type Text string

// Handler runs a command. args is the input after the command name.
type Handler func(ctx context.Context, args string, env *Env) (interface{}, error)

// Command is a named console command
type Command struct {
	Name    string
	Help    string
	Handler Handler
}

// Env is what a command can reach
type Env struct {
	Session     *consession.Session
	Registry    *conregistry.Registry
	Interceptor *conlog.Interceptor
	Modules     *ModuleCache
	Dispatcher  *Dispatcher
}

// Config configures a Dispatcher
type Config struct {
	Registry    *conregistry.Registry
	Interceptor *conlog.Interceptor
	Modules     map[string]ModuleFactory

	// Commands are registered after the defaults and may replace them
	Commands []Command
}

// Dispatcher routes input lines to commands or the evaluator
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]Command

	registry    *conregistry.Registry
	interceptor *conlog.Interceptor
	modules     *ModuleCache
}

// NewDispatcher creates a dispatcher with the default command set
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		commands:    make(map[string]Command),
		registry:    cfg.Registry,
		interceptor: cfg.Interceptor,
		modules:     NewModuleCache(cfg.Modules),
	}
	for _, cmd := range defaultCommands() {
		d.Register(cmd)
	}
	for _, cmd := range cfg.Commands {
		d.Register(cmd)
	}
	return d
}

// Register adds or replaces a command
func (d *Dispatcher) Register(cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[cmd.Name] = cmd
}

// Command returns the command registered under name
func (d *Dispatcher) Command(name string) (Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmd, ok := d.commands[name]
	return cmd, ok
}

// Names returns the sorted command names
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Complete returns the command names starting with prefix
func (d *Dispatcher) Complete(prefix string) []string {
	var matches []string
	for _, name := range append(d.Names(), "keys") {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}

// Modules returns the module cache shared by all sessions
func (d *Dispatcher) Modules() *ModuleCache {
	return d.modules
}

func (d *Dispatcher) env(s *consession.Session) *Env {
	return &Env{
		Session:     s,
		Registry:    d.registry,
		Interceptor: d.interceptor,
		Modules:     d.modules,
		Dispatcher:  d,
	}
}

// Eval evaluates one line for session s. A line starting with a command
// name runs that command; "keys <expr>" lists the keys of a result;
// anything else is JavaScript. Failures are returned, never panicked.
func (d *Dispatcher) Eval(ctx context.Context, s *consession.Session, line string) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, errors.Errorf("%v", r)
		}
	}()

	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	word, rest := splitWord(line)
	if word == "keys" && isArgs(rest) && strings.TrimSpace(rest) != "" {
		v, err := d.Eval(ctx, s, rest)
		if err != nil {
			return nil, err
		}
		return Keys(v)
	}

	if cmd, ok := d.Command(word); ok && (isArgs(rest) || isPath(rest)) {
		if isPath(rest) {
			result, err = cmd.Handler(ctx, "", d.env(s))
			if err == nil {
				result, err = Lookup(result, rest)
			}
		} else {
			result, err = cmd.Handler(ctx, strings.TrimSpace(rest), d.env(s))
		}
		if err != nil {
			return nil, err
		}
		d.evaluator(s).SetLast(result)
		return result, nil
	}

	return d.evaluator(s).Eval(ctx, line)
}

// Reset drops the session's evaluator state
func (d *Dispatcher) Reset(s *consession.Session) {
	s.Delete(evaluatorKey{})
}

type evaluatorKey struct{}

// evaluator returns the session's runtime, creating it on first use. The
// session's input goroutine is its only user.
func (d *Dispatcher) evaluator(s *consession.Session) *Evaluator {
	if v, ok := s.Load(evaluatorKey{}); ok {
		return v.(*Evaluator)
	}
	ev := NewEvaluator(d.modules)
	s.Store(evaluatorKey{}, ev)
	return ev
}

// splitWord splits the leading identifier from the rest of the line
func splitWord(line string) (word, rest string) {
	i := 0
	for i < len(line) && isIdentChar(line[i]) {
		i++
	}
	return line[:i], line[i:]
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// isArgs reports whether rest is empty or separated from the word by space
func isArgs(rest string) bool {
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// isPath reports whether rest is a property path
func isPath(rest string) bool {
	return strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "[")
}
