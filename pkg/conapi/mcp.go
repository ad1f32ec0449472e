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
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
)

// maxToolLogs caps the events a single tail_logs call returns
const maxToolLogs = 500

// TailLogsInput selects buffered events for the tail_logs tool
type TailLogsInput struct {
	Count  int    `json:"count,omitempty" jsonschema:"Number of most recent events to return (default: 50, max: 500)"`
	Level  string `json:"level,omitempty" jsonschema:"Only return events of this level: debug, log, info, warn, error, trace or all"`
	Search string `json:"search,omitempty" jsonschema:"Only return events whose text contains this string (case insensitive)"`
}

func (m *Manager) setupMCP() {
	m.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "debugcon",
		Version: m.version,
	}, nil)

	mcp.AddTool(m.mcpServer, &mcp.Tool{
		Name:        "tail_logs",
		Description: "Return the most recent console log events captured by the debug console, oldest first.",
	}, m.handleTailLogs)

	mcp.AddTool(m.mcpServer, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List the clients connected to the debug console with their identity, state and log mirroring setting.",
	}, m.handleListSessions)
}

func (m *Manager) handleTailLogs(ctx context.Context, req *mcp.CallToolRequest, input TailLogsInput) (*mcp.CallToolResult, any, error) {
	if m.logs == nil {
		return nil, nil, errors.New("console interceptor not available")
	}

	count := input.Count
	if count <= 0 {
		count = 50
	}
	if count > maxToolLogs {
		count = maxToolLogs
	}
	level := strings.ToLower(input.Level)
	search := strings.ToLower(input.Search)

	filtered := []LogEntry{}
	for _, entry := range logEntries(m.logs.Last(count)) {
		if level != "" && level != "all" && entry.Level != level {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(entry.Text), search) {
			continue
		}
		filtered = append(filtered, entry)
	}

	result := map[string]interface{}{
		"logs":  filtered,
		"count": len(filtered),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Retrieved %d console event(s)", len(filtered))},
		},
	}, result, nil
}

func (m *Manager) handleListSessions(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
	if m.sessions == nil {
		return nil, nil, errors.New("session registry not available")
	}

	infos := sessionInfos(m.sessions.List())
	result := map[string]interface{}{
		"sessions": infos,
		"count":    len(infos),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%d console session(s) connected", len(infos))},
		},
	}, result, nil
}
