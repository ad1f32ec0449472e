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

package consession

import (
	"context"
	"io"
	"time"
	"unicode"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrLoginAborted is returned when the user gives up at the login prompt
var ErrLoginAborted = errors.New("login aborted")

const loginIncorrect = "Login incorrect"

// Authenticator checks credentials
type Authenticator interface {
	Authenticate(login, password string) bool
}

// AuthFunc adapts a function to Authenticator
type AuthFunc func(login, password string) bool

// Authenticate calls f
func (f AuthFunc) Authenticate(login, password string) bool {
	return f(login, password)
}

// PasswordTable authenticates against a fixed login to password map
type PasswordTable map[string]string

// Authenticate implements Authenticator
func (t PasswordTable) Authenticate(login, password string) bool {
	want, ok := t[login]
	return ok && want == password
}

// EmptyLoginPolicy decides what an empty login does
type EmptyLoginPolicy int

const (
	// EmptyLoginClose closes the connection
	EmptyLoginClose EmptyLoginPolicy = iota

	// EmptyLoginRestart shows the login prompt again
	EmptyLoginRestart
)

// LoginBackoff returns the delay schedule between failed logins:
// one second, doubling, capped at thirty seconds.
func LoginBackoff() wait.Backoff {
	return wait.Backoff{
		Duration: time.Second,
		Factor:   2,
		Cap:      30 * time.Second,
		Steps:    1 << 30,
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// login runs the prompt loop until the credentials are accepted
func (s *Session) login() error {
	backoff := s.opts.Backoff

	for {
		s.print("login: ")
		login, err := s.readLine(true)
		if err != nil {
			return err
		}
		s.print("\r\n")

		if login == "" {
			if s.opts.EmptyLogin == EmptyLoginRestart {
				continue
			}
			return ErrLoginAborted
		}

		s.print("password: ")
		password, err := s.readLine(false)
		if err != nil {
			return err
		}
		s.print("\r\n")

		if s.opts.Auth.Authenticate(login, password) {
			s.setIdentity(login)
			log.Infof("Console login %s from %s", login, s.RemoteAddr())
			return nil
		}

		log.Warnf("Console login failed for %s from %s", login, s.RemoteAddr())
		if err := s.opts.Sleep(s.ctx, backoff.Step()); err != nil {
			return err
		}
		s.print(loginIncorrect + "\r\n")
	}
}

// readLine reads one line from the raw stream, echoing it when echo is set
func (s *Session) readLine(echo bool) (string, error) {
	var line []rune
	for {
		r, _, err := s.reader.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrLoginAborted
			}
			return "", err
		}

		switch r {
		case '\r':
			if s.reader.Buffered() > 0 {
				if next, err := s.reader.Peek(1); err == nil && (next[0] == '\n' || next[0] == 0) {
					_, _ = s.reader.ReadByte()
				}
			}
			return string(line), nil
		case '\n':
			return string(line), nil
		case 0x7f, 0x08:
			if len(line) > 0 {
				line = line[:len(line)-1]
				if echo {
					s.print("\b \b")
				}
			}
		case 0x03, 0x04:
			return "", ErrLoginAborted
		default:
			if unicode.IsPrint(r) {
				line = append(line, r)
				if echo {
					s.print(string(r))
				}
			}
		}
	}
}
