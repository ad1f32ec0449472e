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

package conlog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Hook mirrors entries written directly through logrus into an Interceptor.
// Entries written by a logrus-backed Namespace are skipped because the
// interceptor already captured them at the entry point.
type Hook struct {
	interceptor *Interceptor
}

// Hook returns a logrus hook feeding this interceptor
func (i *Interceptor) Hook() *Hook {
	return &Hook{interceptor: i}
}

// Levels implements logrus.Hook
func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. It never writes output; logrus does.
func (h *Hook) Fire(entry *logrus.Entry) error {
	if fromNamespace(entry.Context) {
		return nil
	}

	level := FromLogrus(entry.Level)
	if !h.interceptor.intercepts(level) {
		return nil
	}

	args := []interface{}{entry.Message}
	if fields := formatFields(entry.Data); fields != "" {
		args = append(args, fields)
	}
	h.interceptor.capture(level, args, false)
	return nil
}

// FromLogrus maps a logrus level onto a console level
func FromLogrus(level logrus.Level) Level {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return ErrorLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.DebugLevel:
		return DebugLevel
	case logrus.TraceLevel:
		return TraceLevel
	}
	return LogLevel
}

// formatFields renders logrus fields as sorted key=value pairs
func formatFields(data logrus.Fields) string {
	if len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(pairs, " ")
}
