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

// Package conserver starts a debug console: it intercepts a logging
// namespace, accepts telnet clients, optionally attaches the local terminal
// and serves the inspection API.
package conserver

import (
	"context"
	"net"
	"os/user"
	"strconv"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/txn2/debugcon/pkg/conapi"
	"github.com/txn2/debugcon/pkg/concmd"
	"github.com/txn2/debugcon/pkg/conedit"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/conregistry"
	"github.com/txn2/debugcon/pkg/consession"
	"github.com/txn2/debugcon/pkg/contelnet"
)

// DefaultPort is the telnet port the CLI listens on
const DefaultPort = 2323

// Options configures a console server
type Options struct {
	// Host and Port select the telnet listener. A negative port disables
	// it and port 0 picks a free one.
	Host string
	Port int

	// Local attaches a session to the process's own terminal
	Local bool

	// HistoryFile persists submitted lines; empty keeps history in memory
	HistoryFile string
	HistorySize int

	// Keep is the capacity of the log buffer
	Keep    int
	Mirror  bool
	Minimal bool
	Colors  bool
	Levels  []conlog.Level

	Auth       consession.Authenticator
	EmptyLogin consession.EmptyLoginPolicy
	Prompt     string

	// Namespace is the logging namespace to intercept, conlog.Std() when
	// nil. With the standard namespace direct logrus calls are captured too.
	Namespace *conlog.Namespace

	Commands []concmd.Command
	Modules  map[string]concmd.ModuleFactory

	// APIAddr enables the HTTP API when set
	APIAddr string
	Version string
}

// Server is a running console
type Server struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	interceptor *conlog.Interceptor
	registry    *conregistry.Registry
	dispatcher  *concmd.Dispatcher
	history     *conedit.History
	listener    net.Listener
	api         *conapi.Manager
	hook        *conlog.Hook
	localDone   chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Start intercepts the namespace and starts every configured listener. The
// server runs until ctx is cancelled or Close is called.
func Start(ctx context.Context, opts Options) (*Server, error) {
	ns := opts.Namespace
	if ns == nil {
		ns = conlog.Std()
	}

	history, err := openHistory(opts.HistoryFile, opts.HistorySize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		registry: conregistry.New(),
		history:  history,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.interceptor = conlog.NewInterceptor(ns, conlog.Options{
		Levels:  opts.Levels,
		Keep:    opts.Keep,
		Minimal: opts.Minimal,
		Colors:  opts.Colors,
	})
	if opts.Namespace == nil {
		s.hook = s.interceptor.Hook()
		log.AddHook(s.hook)
	}

	s.dispatcher = concmd.NewDispatcher(concmd.Config{
		Registry:    s.registry,
		Interceptor: s.interceptor,
		Modules:     opts.Modules,
		Commands:    opts.Commands,
	})

	if opts.Port >= 0 {
		addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
		s.listener, err = net.Listen("tcp", addr)
		if err != nil {
			s.release()
			return nil, errors.Wrapf(err, "console could not listen on %s", addr)
		}
		log.Infof("Console listening on telnet://%s", s.listener.Addr().String())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.accept()
		}()
	}

	if opts.APIAddr != "" {
		s.api = conapi.New(conapi.Config{
			Addr:     opts.APIAddr,
			Version:  opts.Version,
			Logs:     s.interceptor,
			Sessions: s.registry,
		})
		if err := s.api.Listen(); err != nil {
			_ = s.Close()
			return nil, err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.api.Run(); err != nil {
				log.Errorf("Console API error: %s", err.Error())
			}
		}()
	}

	// the local session is not waited for: a read from stdin cannot be
	// interrupted
	if opts.Local {
		s.localDone = make(chan struct{})
		go func() {
			defer close(s.localDone)
			s.runLocal()
		}()
	}

	go func() {
		<-s.ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

func openHistory(file string, size int) (*conedit.History, error) {
	if file == "" {
		return conedit.NewHistory("", size)
	}
	expanded, err := homedir.Expand(file)
	if err != nil {
		return nil, errors.Wrapf(err, "could not expand history file %s", file)
	}
	return conedit.NewHistory(expanded, size)
}

// accept runs the telnet accept loop. Each client gets its own session.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
			default:
				if !errors.Is(err, net.ErrClosed) {
					log.Errorf("Console accept error: %s", err.Error())
				}
			}
			return
		}

		sess := consession.New(s.ctx, contelnet.New(conn), s.interceptor, s.registry, s.sessionOptions(""))
		s.registry.Add(sess)
		log.Debugf("Console session %s connected from %s", sess.ID, sess.RemoteAddr())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := sess.Run(); err != nil {
				log.Debugf("Console session %s ended: %s", sess.ID, err.Error())
			}
		}()
	}
}

// runLocal attaches a session to the process's terminal
func (s *Server) runLocal() {
	opts := s.sessionOptions(localIdentity())
	opts.Auth = nil
	// the local terminal stands in for the process's own log output
	opts.Mirror = true

	sess := consession.New(s.ctx, consession.NewLocalTerminal(), s.interceptor, s.registry, opts)
	s.registry.Add(sess)
	if err := sess.Run(); err != nil {
		log.Warnf("Local console session ended: %s", err.Error())
	}
}

func localIdentity() string {
	u, err := user.Current()
	if err != nil {
		return "local"
	}
	return u.Username
}

func (s *Server) sessionOptions(identity string) consession.Options {
	return consession.Options{
		Auth:       s.opts.Auth,
		EmptyLogin: s.opts.EmptyLogin,
		Identity:   identity,
		Mirror:     s.opts.Mirror,
		Colors:     s.opts.Colors,
		Prompt:     s.opts.Prompt,
		History:    s.history,
		Eval:       s.dispatcher.Eval,
		Writer:     concmd.Format(s.opts.Colors),
		Completer:  s.dispatcher.Complete,
		OnReset:    s.dispatcher.Reset,
	}
}

// Interceptor returns the console interceptor, e.g. to Reintercept after
// another library replaced the namespace's entry points
func (s *Server) Interceptor() *conlog.Interceptor {
	return s.interceptor
}

// Registry returns the connected sessions
func (s *Server) Registry() *conregistry.Registry {
	return s.registry
}

// Dispatcher returns the command dispatcher, e.g. to Register commands
func (s *Server) Dispatcher() *concmd.Dispatcher {
	return s.dispatcher
}

// LocalDone is closed when the local terminal session ends. It is nil
// without Options.Local.
func (s *Server) LocalDone() <-chan struct{} {
	return s.localDone
}

// Addr returns the telnet listen address, empty when disabled
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// APIAddr returns the API listen address, empty when disabled
func (s *Server) APIAddr() string {
	if s.api == nil {
		return ""
	}
	return s.api.Addr()
}

// Close stops listening, closes every session and restores the namespace
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
		}
		if s.api != nil {
			s.api.Stop()
		}
		s.registry.CloseAll()
		s.wg.Wait()
		s.release()
		log.Debugf("Console stopped")
	})
	return err
}

// release undoes the interception
func (s *Server) release() {
	s.cancel()
	if s.hook != nil {
		removeHook(log.StandardLogger(), s.hook)
		s.hook = nil
	}
	s.interceptor.Restore()
}

// removeHook drops hook from every level of logger
func removeHook(logger *log.Logger, hook log.Hook) {
	kept := make(log.LevelHooks)
	for level, hooks := range logger.ReplaceHooks(make(log.LevelHooks)) {
		for _, h := range hooks {
			if h == hook {
				continue
			}
			kept[level] = append(kept[level], h)
		}
	}
	logger.ReplaceHooks(kept)
}
