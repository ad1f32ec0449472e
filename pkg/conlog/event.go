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
	"strings"
	"time"
)

// Event is the immutable record of one intercepted logging call.
// Rendered, when non-nil, holds one string per element of Args.
type Event struct {
	Level    Level
	Args     []interface{}
	Rendered []string
	Time     time.Time

	// Stack is the captured call stack of a trace call
	Stack string
}

// Text returns the line a console shows for the event: rendered arguments
// joined by single spaces, followed by the stack for trace events. Events
// captured in minimal mode are rendered on demand.
func (e Event) Text(colors bool) string {
	parts := e.Rendered
	if parts == nil {
		parts = RenderAll(e.Args, colors)
	}
	text := strings.Join(parts, " ")
	if e.Stack != "" {
		text += "\n" + e.Stack
	}
	return text
}
