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
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// DefaultLogCount is the number of events returned when no count is given
const DefaultLogCount = 100

func (m *Manager) health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   m.version,
		Uptime:    m.Uptime().Round(time.Second).String(),
		Timestamp: time.Now(),
	}
	if m.sessions != nil {
		resp.Sessions = len(m.sessions.List())
	}
	if m.logs != nil {
		resp.Buffered = m.logs.Len()
	}
	c.JSON(http.StatusOK, resp)
}

func (m *Manager) recentLogs(c *gin.Context) {
	if m.logs == nil {
		fail(c, http.StatusServiceUnavailable, "NOT_READY", "Console interceptor not available")
		return
	}

	count, err := strconv.Atoi(c.DefaultQuery("count", strconv.Itoa(DefaultLogCount)))
	if err != nil || count < 1 {
		count = DefaultLogCount
	}

	events := m.logs.Last(count)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    LogsResponse{Logs: logEntries(events)},
		Meta:    &MetaInfo{Count: len(events), Timestamp: time.Now()},
	})
}

func (m *Manager) clearLogs(c *gin.Context) {
	if m.logs == nil {
		fail(c, http.StatusServiceUnavailable, "NOT_READY", "Console interceptor not available")
		return
	}

	m.logs.Clear()
	log.Debugf("Console API cleared the log buffer")
	c.JSON(http.StatusOK, Response{
		Success: true,
		Meta:    &MetaInfo{Timestamp: time.Now()},
	})
}

func (m *Manager) listSessions(c *gin.Context) {
	if m.sessions == nil {
		fail(c, http.StatusServiceUnavailable, "NOT_READY", "Session registry not available")
		return
	}

	infos := sessionInfos(m.sessions.List())
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    SessionsResponse{Sessions: infos},
		Meta:    &MetaInfo{Count: len(infos), Timestamp: time.Now()},
	})
}

func (m *Manager) reintercept(c *gin.Context) {
	if m.logs == nil {
		fail(c, http.StatusServiceUnavailable, "NOT_READY", "Console interceptor not available")
		return
	}

	patched := m.logs.Reintercept(nil)
	log.Infof("Console API re-intercepted %d level(s)", patched)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ReinterceptResponse{Patched: patched},
		Meta:    &MetaInfo{Timestamp: time.Now()},
	})
}
