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

import "sync"

// Handler receives events for the level it subscribed to
type Handler func(Event)

// AllHandler receives every event together with its level
type AllHandler func(Level, Event)

// UnsubscribeFunc is returned by Subscribe and can be called to remove the handler.
// Calling it more than once is harmless.
type UnsubscribeFunc func()

// handlerEntry wraps a handler with a unique ID for unsubscription
type handlerEntry struct {
	id      uint64
	handler Handler
}

type allEntry struct {
	id      uint64
	handler AllHandler
}

// bus dispatches events synchronously, in emission order. Emitting to a
// level nobody listens to does nothing.
type bus struct {
	mu        sync.RWMutex
	handlers  map[Level][]handlerEntry
	allHandle []allEntry
	nextID    uint64
	onPanic   func(interface{})
}

func newBus(onPanic func(interface{})) *bus {
	return &bus{
		handlers:  make(map[Level][]handlerEntry),
		allHandle: make([]allEntry, 0),
		onPanic:   onPanic,
	}
}

func (b *bus) subscribe(level Level, handler Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[level] = append(b.handlers[level], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.handlers[level]
		for i, entry := range handlers {
			if entry.id == id {
				b.handlers[level] = append(handlers[:i:i], handlers[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) subscribeAll(handler AllHandler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.allHandle = append(b.allHandle, allEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, entry := range b.allHandle {
			if entry.id == id {
				b.allHandle = append(b.allHandle[:i:i], b.allHandle[i+1:]...)
				return
			}
		}
	}
}

// count returns the number of handlers that would see an event of level
func (b *bus) count(level Level) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[level]) + len(b.allHandle)
}

// emit calls level handlers first, then catch-all handlers. Handlers run
// outside the lock so they may unsubscribe themselves.
func (b *bus) emit(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Level]
	all := b.allHandle
	b.mu.RUnlock()

	for _, entry := range handlers {
		b.safeCall(func() { entry.handler(event) })
	}
	for _, entry := range all {
		b.safeCall(func() { entry.handler(event.Level, event) })
	}
}

// safeCall invokes a handler with panic recovery to prevent one bad handler
// from breaking the logging call that triggered it.
func (b *bus) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(r)
		}
	}()
	fn()
}
