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
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrClosed is returned by writes to a session that is shutting down
var ErrClosed = errors.New("session closed")

// isBrokenPipe reports whether err means the peer went away
func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

// safeWriter closes the session on the first failed write. A vanished peer
// is expected and stays quiet; anything else is logged once.
type safeWriter struct {
	s      *Session
	w      io.Writer
	report sync.Once
}

func (w *safeWriter) Write(p []byte) (int, error) {
	if w.s.State() >= StateClosing {
		return 0, ErrClosed
	}

	n, err := w.w.Write(p)
	if err == nil {
		return n, nil
	}

	if !isBrokenPipe(err) {
		w.report.Do(func() {
			log.Errorf("Console session %s write error: %s", w.s.RemoteAddr(), err.Error())
		})
	}
	_ = w.s.Close()
	return n, err
}
