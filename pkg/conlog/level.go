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

// Package conlog intercepts logging entry points and republishes every call
// as an Event to subscribers, while still performing the original logging.
package conlog

import (
	"strings"

	"github.com/pkg/errors"
)

// Level identifies a logging entry point
type Level int

const (
	DebugLevel Level = iota
	LogLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	TraceLevel
)

// AllLevels lists every entry point a Namespace exposes
var AllLevels = []Level{DebugLevel, LogLevel, InfoLevel, WarnLevel, ErrorLevel, TraceLevel}

// ErrUnknownLevel is returned by ParseLevel for names outside AllLevels
var ErrUnknownLevel = errors.New("unknown log level")

// String returns the entry point name
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case LogLevel:
		return "log"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case TraceLevel:
		return "trace"
	default:
		return "unknown"
	}
}

// ParseLevel converts an entry point name to a Level
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "log":
		return LogLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "trace":
		return TraceLevel, nil
	}
	return DebugLevel, errors.Wrapf(ErrUnknownLevel, "%q", name)
}

// ParseLevels converts a list of names, rejecting the first unknown one
func ParseLevels(names []string) ([]Level, error) {
	levels := make([]Level, 0, len(names))
	for _, name := range names {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}
