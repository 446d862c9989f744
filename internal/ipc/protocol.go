// Package ipc implements C14: the line-delimited JSON Unix domain socket
// server that multiplexes interactive turns, subscription broadcasts, tool
// execution, and memory/status queries. Grounded on
// original_source/crates/runtime/src/server.rs.
package ipc

import (
	"encoding/json"
	"fmt"

	"aigent/internal/runtime"
	"aigent/internal/tools"
)

// ClientCommand is one line sent by a client. Go has no tagged union, so
// every variant's fields live on one struct and Kind selects which apply,
// mirroring the BackendEvent/ToolOutput idiom already used elsewhere in
// this module.
type ClientCommand struct {
	Kind string `json:"kind"`

	// SubmitTurn
	User   string `json:"user,omitempty"`
	Source string `json:"source,omitempty"`

	// GetMemoryPeek
	Limit int `json:"limit,omitempty"`

	// ExecuteTool
	Tool string            `json:"tool,omitempty"`
	Args map[string]string `json:"args,omitempty"`
}

const (
	KindSubmitTurn     = "SubmitTurn"
	KindSubscribe      = "Subscribe"
	KindGetStatus      = "GetStatus"
	KindGetMemoryPeek  = "GetMemoryPeek"
	KindListTools      = "ListTools"
	KindExecuteTool    = "ExecuteTool"
	KindReloadConfig   = "ReloadConfig"
	KindRunSleepCycle  = "RunSleepCycle"
	KindShutdown       = "Shutdown"
	KindPing           = "Ping"
)

// ServerEvent is one line sent by the server, same tagged-struct idiom as
// ClientCommand.
type ServerEvent struct {
	Kind string `json:"kind"`

	Backend     *runtime.BackendEvent `json:"backend,omitempty"`
	Status      *DaemonStatus         `json:"status,omitempty"`
	MemoryPeek  []string              `json:"memory_peek,omitempty"`
	ToolList    []tools.ToolSpec      `json:"tool_list,omitempty"`
	ToolResult  *ToolResult           `json:"tool_result,omitempty"`
	Ack         string                `json:"ack,omitempty"`
}

// DaemonStatus is the snapshot returned by GetStatus.
type DaemonStatus struct {
	BotName             string `json:"bot_name"`
	Provider            string `json:"provider"`
	Model               string `json:"model"`
	ThinkingLevel       string `json:"thinking_level"`
	MemoryTotal         int    `json:"memory_total"`
	MemoryCore          int    `json:"memory_core"`
	MemoryUserProfile   int    `json:"memory_user_profile"`
	MemoryReflective    int    `json:"memory_reflective"`
	MemorySemantic      int    `json:"memory_semantic"`
	MemoryProcedural    int    `json:"memory_procedural"`
	MemoryEpisodic      int    `json:"memory_episodic"`
	UptimeSecs          int64  `json:"uptime_secs"`
	AvailableTools      []string `json:"available_tools"`
}

// ToolResult is returned by ExecuteTool.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

func eventBackend(e runtime.BackendEvent) ServerEvent {
	return ServerEvent{Kind: "Backend", Backend: &e}
}

func eventStatus(s DaemonStatus) ServerEvent { return ServerEvent{Kind: "Status", Status: &s} }

func eventMemoryPeek(contents []string) ServerEvent {
	return ServerEvent{Kind: "MemoryPeek", MemoryPeek: contents}
}

func eventToolList(specs []tools.ToolSpec) ServerEvent {
	return ServerEvent{Kind: "ToolList", ToolList: specs}
}

func eventToolResult(r ToolResult) ServerEvent { return ServerEvent{Kind: "ToolResult", ToolResult: &r} }

func eventAck(message string) ServerEvent { return ServerEvent{Kind: "Ack", Ack: message} }

func parseCommand(line []byte) (ClientCommand, error) {
	var cmd ClientCommand
	if err := json.Unmarshal(line, &cmd); err != nil {
		return ClientCommand{}, fmt.Errorf("ipc: malformed command: %w", err)
	}
	return cmd, nil
}
