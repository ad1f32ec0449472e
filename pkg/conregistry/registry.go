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

// Package conregistry tracks the console sessions that are currently connected
package conregistry

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/txn2/debugcon/pkg/consession"
)

// Registry is a set of live sessions keyed by session ID. It does not own
// the sessions; they add and remove themselves.
type Registry struct {
	mutex    *sync.Mutex
	sessions map[string]*consession.Session
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		mutex:    &sync.Mutex{},
		sessions: make(map[string]*consession.Session),
	}
}

// Add registers a session
func (r *Registry) Add(s *consession.Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[s.ID] = s
}

// Remove unregisters a session and reports whether it was registered
func (r *Registry) Remove(s *consession.Session) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, found := r.sessions[s.ID]; !found {
		log.Warnf("Console session %s from %s was not registered", s.ID, s.RemoteAddr())
		return false
	}
	delete(r.sessions, s.ID)
	return true
}

// Get returns the session with the given ID
func (r *Registry) Get(id string) *consession.Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.sessions[id]
}

// List returns all sessions, oldest connection first
func (r *Registry) List() []*consession.Session {
	r.mutex.Lock()
	list := make([]*consession.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mutex.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ConnectedAt.Equal(list[j].ConnectedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].ConnectedAt.Before(list[j].ConnectedAt)
	})
	return list
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.sessions)
}

// CloseAll closes every registered session
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		_ = s.Close()
	}
}
