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

// Package conring provides the fixed-capacity circular store used to keep
// recently intercepted log events.
package conring

import "sync"

// MaxCapacity bounds the allocation a Buffer may make (CodeQL CWE-770 compliance)
const MaxCapacity = 100000

// boundedSize returns size bounded to limit for memory safety
func boundedSize(size, limit int) int {
	if size <= 0 {
		return 0
	}
	if size > limit {
		return limit
	}
	return size
}

// Buffer is a ring buffer holding at most Cap() items. Once full, every
// Push evicts the oldest item. All methods are safe for concurrent use.
type Buffer[T any] struct {
	items []T
	size  int
	head  int
	count int
	mu    sync.RWMutex
}

// New creates a buffer with the given capacity. Capacities below one are
// clamped to one and capacities above MaxCapacity to MaxCapacity.
func New[T any](capacity int) *Buffer[T] {
	capacity = boundedSize(capacity, MaxCapacity)
	if capacity == 0 {
		capacity = 1
	}
	return &Buffer[T]{
		items: make([]T, capacity),
		size:  capacity,
	}
}

// Push adds an item, overwriting the oldest one when the buffer is full
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Last returns up to n of the most recent items, oldest first.
// It returns nil when n <= 0 or the buffer is empty.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]T, n)
	start := (b.head - n + b.size) % b.size
	for i := 0; i < n; i++ {
		result[i] = b.items[(start+i)%b.size]
	}
	return result
}

// All returns every stored item, oldest first
func (b *Buffer[T]) All() []T {
	return b.Last(b.Len())
}

// Len returns the number of stored items
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the fixed capacity
func (b *Buffer[T]) Cap() int {
	return b.size
}

// Clear empties the buffer without reallocating it
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.count = 0
}
