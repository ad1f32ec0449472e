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
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogFunc is the shape of a logging entry point
type LogFunc func(args ...interface{})

// Entry wraps a LogFunc so that installed entry points can be compared by
// identity. Interceptors use this to notice when another party replaced them.
type Entry struct {
	fn LogFunc
}

// NewEntry creates an entry point around fn
func NewEntry(fn LogFunc) *Entry {
	return &Entry{fn: fn}
}

// Call invokes the entry point. A nil entry or nil func is a no-op.
func (e *Entry) Call(args ...interface{}) {
	if e == nil || e.fn == nil {
		return
	}
	e.fn(args...)
}

// Namespace holds one entry point per level. It stands in for a process-wide
// logging object: application code logs through it and interceptors patch it.
type Namespace struct {
	mu      sync.RWMutex
	entries map[Level]*Entry
}

// NewNamespace creates a namespace whose entry points discard everything
func NewNamespace() *Namespace {
	ns := &Namespace{entries: make(map[Level]*Entry, len(AllLevels))}
	for _, level := range AllLevels {
		ns.entries[level] = NewEntry(nil)
	}
	return ns
}

// namespaceKey marks logrus entries written by a logrus-backed Namespace
type namespaceKey struct{}

var namespaceCtx = context.WithValue(context.Background(), namespaceKey{}, true)

// fromNamespace reports whether a logrus entry was produced by a Namespace
func fromNamespace(ctx context.Context) bool {
	return ctx != nil && ctx.Value(namespaceKey{}) != nil
}

// NewLogrusNamespace creates a namespace whose entry points write through
// logger. The log entry point writes at info level like logrus' Print.
func NewLogrusNamespace(logger *logrus.Logger) *Namespace {
	ns := NewNamespace()
	entry := func() *logrus.Entry {
		return logger.WithContext(namespaceCtx)
	}

	ns.Set(DebugLevel, NewEntry(func(args ...interface{}) { entry().Debug(args...) }))
	ns.Set(LogLevel, NewEntry(func(args ...interface{}) { entry().Print(args...) }))
	ns.Set(InfoLevel, NewEntry(func(args ...interface{}) { entry().Info(args...) }))
	ns.Set(WarnLevel, NewEntry(func(args ...interface{}) { entry().Warn(args...) }))
	ns.Set(ErrorLevel, NewEntry(func(args ...interface{}) { entry().Error(args...) }))
	ns.Set(TraceLevel, NewEntry(func(args ...interface{}) { entry().Trace(args...) }))
	return ns
}

var std = sync.OnceValue(func() *Namespace {
	return NewLogrusNamespace(logrus.StandardLogger())
})

// Std returns the process-wide namespace backed by the logrus standard logger
func Std() *Namespace {
	return std()
}

// Entry returns the current entry point for level
func (n *Namespace) Entry(level Level) *Entry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.entries[level]
}

// Set installs e as the entry point for level and returns the previous one
func (n *Namespace) Set(level Level, e *Entry) *Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	prev := n.entries[level]
	n.entries[level] = e
	return prev
}

// Call invokes the entry point for level
func (n *Namespace) Call(level Level, args ...interface{}) {
	n.Entry(level).Call(args...)
}

func (n *Namespace) Debug(args ...interface{}) { n.Call(DebugLevel, args...) }
func (n *Namespace) Log(args ...interface{})   { n.Call(LogLevel, args...) }
func (n *Namespace) Info(args ...interface{})  { n.Call(InfoLevel, args...) }
func (n *Namespace) Warn(args ...interface{})  { n.Call(WarnLevel, args...) }
func (n *Namespace) Error(args ...interface{}) { n.Call(ErrorLevel, args...) }
func (n *Namespace) Trace(args ...interface{}) { n.Call(TraceLevel, args...) }

// Debugf formats according to a format specifier and logs at debug level
func (n *Namespace) Debugf(format string, args ...interface{}) {
	n.Debug(fmt.Sprintf(format, args...))
}

// Logf formats according to a format specifier and logs through the log entry point
func (n *Namespace) Logf(format string, args ...interface{}) {
	n.Log(fmt.Sprintf(format, args...))
}

// Infof formats according to a format specifier and logs at info level
func (n *Namespace) Infof(format string, args ...interface{}) {
	n.Info(fmt.Sprintf(format, args...))
}

// Warnf formats according to a format specifier and logs at warn level
func (n *Namespace) Warnf(format string, args ...interface{}) {
	n.Warn(fmt.Sprintf(format, args...))
}

// Errorf formats according to a format specifier and logs at error level
func (n *Namespace) Errorf(format string, args ...interface{}) {
	n.Error(fmt.Sprintf(format, args...))
}
