//go:build unix

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

package concmd

import (
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func rusage() map[string]interface{} {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return nil
	}
	return map[string]interface{}{
		"utime":  time.Duration(ru.Utime.Nano()).Seconds(),
		"stime":  time.Duration(ru.Stime.Nano()).Seconds(),
		"maxrss": int64(ru.Maxrss),
		"minflt": int64(ru.Minflt),
		"majflt": int64(ru.Majflt),
		"nvcsw":  int64(ru.Nvcsw),
		"nivcsw": int64(ru.Nivcsw),
	}
}

// parseSignal accepts a signal number or a name with or without the SIG prefix
func parseSignal(arg string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n <= 0 || unix.SignalName(syscall.Signal(n)) == "" {
			return 0, errors.Errorf("raise: unknown signal %d", n)
		}
		return syscall.Signal(n), nil
	}

	name := strings.ToUpper(arg)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, errors.Errorf("raise: unknown signal %q", arg)
	}
	return sig, nil
}

// raise sends a signal to this process and returns its name
func raise(arg string) (string, error) {
	sig, err := parseSignal(arg)
	if err != nil {
		return "", err
	}
	if err := unix.Kill(os.Getpid(), sig); err != nil {
		return "", errors.Wrap(err, "raise")
	}
	return unix.SignalName(sig), nil
}
