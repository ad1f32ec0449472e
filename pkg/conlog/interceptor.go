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

package conlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/txn2/debugcon/pkg/conring"
)

// DefaultKeep is the buffer capacity used when Options.Keep is not set
const DefaultKeep = 1000

// Options configures an Interceptor
type Options struct {
	// Levels to intercept, all levels when empty
	Levels []Level

	// Keep is the number of events retained in the buffer
	Keep int

	// Minimal skips rendering and timestamps at capture time
	Minimal bool

	// Colors adds ANSI color hints to inspected values
	Colors bool
}

// Interceptor replaces entry points of a Namespace with wrappers that record
// every call, publish it to subscribers, then delegate to the entry point
// that was installed before (the upstream).
type Interceptor struct {
	ns     *Namespace
	opts   Options
	buffer *conring.Buffer[Event]
	bus    *bus
	now    func() time.Time

	// mu guards chains
	mu sync.Mutex
	// chains holds one patch per namespace, so wrappers installed on a
	// foreign namespace by Reintercept delegate to that namespace's
	// upstream and never to ns's
	chains map[*Namespace]*chain

	// emitMu keeps buffer order and delivery order identical
	emitMu sync.Mutex
}

// chain is the set of wrappers installed on one namespace and the entry
// points they delegate to
type chain struct {
	upstream  map[Level]*Entry
	installed map[Level]*Entry
}

// NewInterceptor snapshots the current entry points of ns as upstream and
// installs wrappers for opts.Levels. A nil ns selects Std().
func NewInterceptor(ns *Namespace, opts Options) *Interceptor {
	if ns == nil {
		ns = Std()
	}
	if len(opts.Levels) == 0 {
		opts.Levels = AllLevels
	}
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}

	i := &Interceptor{
		ns:     ns,
		opts:   opts,
		buffer: conring.New[Event](opts.Keep),
		now:    time.Now,
		chains: make(map[*Namespace]*chain, 1),
	}
	i.bus = newBus(i.report)

	i.mu.Lock()
	defer i.mu.Unlock()
	c := i.chainFor(ns)
	for _, level := range AllLevels {
		c.upstream[level] = ns.Entry(level)
	}
	for _, level := range opts.Levels {
		ns.Set(level, c.installed[level])
	}
	return i
}

// chainFor returns the chain of target, building its wrappers on first use.
// The caller holds mu.
func (i *Interceptor) chainFor(target *Namespace) *chain {
	if c, ok := i.chains[target]; ok {
		return c
	}
	c := &chain{
		upstream:  make(map[Level]*Entry, len(AllLevels)),
		installed: make(map[Level]*Entry, len(i.opts.Levels)),
	}
	for _, level := range i.opts.Levels {
		c.installed[level] = NewEntry(i.wrap(target, level))
	}
	i.chains[target] = c
	return c
}

// Namespace returns the namespace this interceptor patched at construction
func (i *Interceptor) Namespace() *Namespace {
	return i.ns
}

// Options returns the effective options
func (i *Interceptor) Options() Options {
	return i.opts
}

// wrap builds the replacement entry point for level on target
func (i *Interceptor) wrap(target *Namespace, level Level) LogFunc {
	return func(args ...interface{}) {
		i.capture(level, args, level == TraceLevel)
		i.upstreamEntry(target, level).Call(args...)
	}
}

func (i *Interceptor) upstreamEntry(target *Namespace, level Level) *Entry {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.chains[target].upstream[level]
}

// capture records and publishes one call. It never panics.
func (i *Interceptor) capture(level Level, args []interface{}, withStack bool) {
	defer func() {
		if r := recover(); r != nil {
			i.report(r)
		}
	}()

	event := Event{
		Level: level,
		Args:  append([]interface{}(nil), args...),
	}
	if !i.opts.Minimal {
		event.Time = i.now()
		event.Rendered = RenderAll(event.Args, i.opts.Colors)
	}
	if withStack {
		event.Stack = captureStack()
	}

	i.emitMu.Lock()
	defer i.emitMu.Unlock()
	i.buffer.Push(event)
	i.bus.emit(event)
}

// report sends an internal fault to the upstream error entry point, which
// bypasses this interceptor and cannot recurse into it.
func (i *Interceptor) report(r interface{}) {
	i.upstreamEntry(i.ns, ErrorLevel).Call(fmt.Sprintf("console interceptor: %v", r))
}

// intercepts reports whether level is one of the intercepted levels
func (i *Interceptor) intercepts(level Level) bool {
	for _, l := range i.opts.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// Subscribe registers a handler for one level. Handlers run on the logging
// goroutine while the emission lock is held, so they must not block or log.
func (i *Interceptor) Subscribe(level Level, handler Handler) UnsubscribeFunc {
	return i.bus.subscribe(level, handler)
}

// SubscribeAll registers a handler that receives every event
func (i *Interceptor) SubscribeAll(handler AllHandler) UnsubscribeFunc {
	return i.bus.subscribeAll(handler)
}

// Listeners returns how many handlers receive events of level
func (i *Interceptor) Listeners(level Level) int {
	return i.bus.count(level)
}

// Last returns up to n most recent events, oldest first
func (i *Interceptor) Last(n int) []Event {
	return i.buffer.Last(n)
}

// All returns every buffered event, oldest first
func (i *Interceptor) All() []Event {
	return i.buffer.All()
}

// Len returns the number of buffered events
func (i *Interceptor) Len() int {
	return i.buffer.Len()
}

// Clear drops every buffered event
func (i *Interceptor) Clear() {
	i.buffer.Clear()
}

// Reintercept re-patches target (the interceptor's own namespace when nil).
// Every intercepted level whose current entry point is not this
// interceptor's wrapper for target is adopted as target's new upstream and
// the wrapper is installed again on top of it. Upstreams are kept per
// namespace, so patching a foreign namespace leaves the chain of the
// interceptor's own namespace alone. It returns the number of levels
// re-patched.
func (i *Interceptor) Reintercept(target *Namespace) int {
	if target == nil {
		target = i.ns
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	c := i.chainFor(target)
	patched := 0
	for _, level := range i.opts.Levels {
		current := target.Entry(level)
		if current == c.installed[level] {
			continue
		}
		c.upstream[level] = current
		target.Set(level, c.installed[level])
		patched++
	}
	return patched
}

// Restore puts the upstream entry points back on every namespace this
// interceptor patched, for each level where its wrapper is still installed.
func (i *Interceptor) Restore() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for target, c := range i.chains {
		for _, level := range i.opts.Levels {
			if target.Entry(level) == c.installed[level] {
				target.Set(level, c.upstream[level])
			}
		}
	}
}

const pkgPrefix = "github.com/txn2/debugcon/pkg/conlog."

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// captureStack formats the caller's stack, skipping the interceptor's own frames
func captureStack() string {
	var b strings.Builder
	b.WriteString("Trace")

	st, ok := errors.New("Trace").(stackTracer)
	if !ok {
		return b.String()
	}

	leading := true
	for _, frame := range st.StackTrace() {
		if leading && strings.HasPrefix(fmt.Sprintf("%+s", frame), pkgPrefix) {
			continue
		}
		leading = false
		fmt.Fprintf(&b, "\n    at %n (%s:%d)", frame, frame, frame)
	}
	return b.String()
}
