package runtime

// BackendEvent is one lifecycle or lifecycle-adjacent event produced by a
// turn or a background task, serialized to IPC subscribers as a single JSON
// object tagged by "type" (spec §4.12).
type BackendEvent struct {
	Type string `json:"type"`

	Content    string  `json:"content,omitempty"`
	Message    string  `json:"message,omitempty"`
	Claim      string  `json:"claim,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
	Tool       string  `json:"tool,omitempty"`
	ToolCallID string  `json:"tool_call_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func EventThinking() BackendEvent { return BackendEvent{Type: "Thinking"} }

func EventToken(chunk string) BackendEvent { return BackendEvent{Type: "Token", Content: chunk} }

func EventMemoryUpdated() BackendEvent { return BackendEvent{Type: "MemoryUpdated"} }

func EventDone() BackendEvent { return BackendEvent{Type: "Done"} }

func EventError(msg string) BackendEvent { return BackendEvent{Type: "Error", Error: msg} }

func EventExternalTurn(content string) BackendEvent {
	return BackendEvent{Type: "ExternalTurn", Content: content}
}

func EventToolCallStart(tool, toolCallID string) BackendEvent {
	return BackendEvent{Type: "ToolCallStart", Tool: tool, ToolCallID: toolCallID}
}

func EventToolCallEnd(tool, toolCallID string) BackendEvent {
	return BackendEvent{Type: "ToolCallEnd", Tool: tool, ToolCallID: toolCallID}
}

func EventBeliefAdded(claim string, confidence float32) BackendEvent {
	return BackendEvent{Type: "BeliefAdded", Claim: claim, Confidence: confidence}
}

func EventReflectionInsight(insight string) BackendEvent {
	return BackendEvent{Type: "ReflectionInsight", Content: insight}
}

func EventProactiveMessage(content string) BackendEvent {
	return BackendEvent{Type: "ProactiveMessage", Content: content}
}
