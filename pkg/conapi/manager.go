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

// Package conapi serves a read-mostly HTTP view of a running debug console:
// buffered log events, connected sessions and an MCP endpoint exposing the
// same data as tools.
package conapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config wires the API to a console
type Config struct {
	// Addr is the host:port to listen on; port 0 picks a free port
	Addr     string
	Version  string
	Logs     LogStore
	Sessions SessionLister
}

// Manager manages the API server lifecycle
type Manager struct {
	server    *http.Server
	router    *gin.Engine
	listener  net.Listener
	mcpServer *mcp.Server
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
	startTime time.Time

	addr     string
	version  string
	logs     LogStore
	sessions SessionLister
}

// New creates a manager and its router. Nothing listens until Listen.
func New(cfg Config) *Manager {
	m := &Manager{
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		startTime: time.Now(),
		addr:      cfg.Addr,
		version:   cfg.Version,
		logs:      cfg.Logs,
		sessions:  cfg.Sessions,
	}
	m.setupMCP()
	m.router = m.setupRouter()
	return m
}

// setupRouter creates the gin router with all routes
func (m *Manager) setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(recovery())
	r.Use(requestLogger())
	r.Use(noCache())
	r.Use(errorHandler())

	api := r.Group("/api")
	{
		api.GET("/health", m.health)

		v1 := api.Group("/v1")
		{
			v1.GET("/logs", m.recentLogs)
			v1.DELETE("/logs", m.clearLogs)
			v1.GET("/sessions", m.listSessions)
			v1.POST("/reintercept", m.reintercept)
		}
	}

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return m.mcpServer
	}, nil)
	r.Any("/mcp", gin.WrapH(mcpHandler))

	return r
}

// Handler returns the router
func (m *Manager) Handler() http.Handler {
	return m.router
}

// Listen binds the listen address
func (m *Manager) Listen() error {
	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return errors.Wrapf(err, "console API could not listen on %s", m.addr)
	}
	m.listener = listener
	m.server = &http.Server{
		Handler:     m.router,
		ReadTimeout: 30 * time.Second,
		// streamable MCP responses stay open
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	log.Infof("Console API listening on http://%s/api", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Listen
func (m *Manager) Addr() string {
	if m.listener == nil {
		return m.addr
	}
	return m.listener.Addr().String()
}

// Run serves requests until Stop. Listen must have succeeded.
func (m *Manager) Run() error {
	if m.listener == nil {
		return errors.New("console API is not listening")
	}
	defer close(m.doneChan)

	errCh := make(chan error, 1)
	go func() {
		if err := m.server.Serve(m.listener); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-m.stopChan:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			log.Errorf("Console API shutdown error: %v", err)
		}
	case err := <-errCh:
		return errors.Wrap(err, "console API stopped")
	}
	return nil
}

// Stop stops the API server
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Done returns a channel that closes when Run returns
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Uptime returns the server uptime
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.startTime)
}
