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

package conapi

import (
	"time"

	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/consession"
)

// LogStore is the part of the console interceptor the API reads
type LogStore interface {
	Last(n int) []conlog.Event
	Len() int
	Clear()
	Reintercept(target *conlog.Namespace) int
}

// SessionLister lists the connected console sessions
type SessionLister interface {
	List() []*consession.Session
}

// Response is the envelope of every API reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo provides error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo carries response metadata
type MetaInfo struct {
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Sessions  int       `json:"sessions"`
	Buffered  int       `json:"buffered"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is one buffered console event
type LogEntry struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Text  string    `json:"text"`
}

// LogsResponse lists buffered console events, oldest first
type LogsResponse struct {
	Logs []LogEntry `json:"logs"`
}

// SessionInfo describes a connected console session
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	Identity    string    `json:"identity"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connectedAt"`
	LogEnabled  bool      `json:"logEnabled"`
	Dropped     uint64    `json:"dropped"`
}

// SessionsResponse lists connected console sessions
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// ReinterceptResponse reports how many levels were patched again
type ReinterceptResponse struct {
	Patched int `json:"patched"`
}

func logEntries(events []conlog.Event) []LogEntry {
	entries := make([]LogEntry, len(events))
	for i, e := range events {
		entries[i] = LogEntry{
			Time:  e.Time,
			Level: e.Level.String(),
			Text:  e.Text(false),
		}
	}
	return entries
}

func sessionInfos(sessions []*consession.Session) []SessionInfo {
	infos := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = SessionInfo{
			ID:          s.ID,
			RemoteAddr:  s.RemoteAddr(),
			Identity:    s.Identity(),
			State:       s.State().String(),
			ConnectedAt: s.ConnectedAt,
			LogEnabled:  s.LogEnabled(),
			Dropped:     s.Dropped(),
		}
	}
	return infos
}
