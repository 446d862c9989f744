package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"aigent/internal/llm"
	"aigent/internal/tools"
)

// LlmToolCall is a structured tool call produced by MaybeToolCall.
type LlmToolCall struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// StringifyArgs coerces every argument value to a string, the shape the
// tool executor's map<string,string> contract expects.
func (c LlmToolCall) StringifyArgs() map[string]string {
	out := make(map[string]string, len(c.Args))
	for k, v := range c.Args {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprintf("%v", val)
				continue
			}
			s := string(b)
			out[k] = strings.Trim(s, `"`)
		}
	}
	return out
}

type toolDecision struct {
	NoAction bool                   `json:"no_action"`
	Tool     string                 `json:"tool"`
	Args     map[string]interface{} `json:"args"`
}

// MaybeToolCall asks the LLM, via a compact dispatcher prompt, whether the
// user's message should trigger a tool call before the main streaming
// reply is generated. Returns nil for purely conversational messages or
// when the LLM is unavailable.
func (rt *Runtime) MaybeToolCall(ctx context.Context, userMessage string, toolSpecs []tools.ToolSpec) *LlmToolCall {
	if len(toolSpecs) == 0 {
		return nil
	}

	var specsBlock strings.Builder
	for _, s := range toolSpecs {
		fmt.Fprintf(&specsBlock, "- %s: %s\n", s.Name, s.Description)
	}

	p := fmt.Sprintf(
		"TASK: Decide if the user message requires calling a tool.\n"+
			"If YES — respond ONLY with JSON: {\"tool\":\"name\",\"args\":{\"key\":\"value\"}}\n"+
			"If NO  — respond ONLY with: {\"no_action\":true}\n\n"+
			"RULES:\n"+
			"- Call web_search for ANY factual question you cannot answer from memory alone "+
			"(stock prices, weather, news, scores, current events, product info, etc.).\n"+
			"- Call a tool for clear action requests (searching, reading/writing files, running shell commands).\n"+
			"- Return no_action ONLY for purely conversational messages (greetings, opinions, stories, jokes) "+
			"that need no external data.\n"+
			"- When in doubt, prefer calling a tool over no_action.\n\n"+
			"AVAILABLE TOOLS:\n%s\nUSER MESSAGE: %s\n\nJSON RESPONSE:",
		specsBlock.String(), userMessage)

	_, raw, err := rt.router.ChatWithFallback(ctx, rt.primary(), p)
	if err != nil {
		slog.Debug("maybe_tool_call: llm unavailable", "err", err)
		return nil
	}

	var decision toolDecision
	if !llm.ExtractJSONOutput(raw, &decision) {
		return nil
	}
	if decision.NoAction || decision.Tool == "" {
		return nil
	}
	return &LlmToolCall{Tool: decision.Tool, Args: decision.Args}
}

// maxToolLoopRounds bounds the structured tool loop per spec §4.11/§8: it
// must terminate in at most 5 rounds for any LLM behavior.
const maxToolLoopRounds = 5

// ToolLoopResult is the structured tool loop's terminal output.
type ToolLoopResult struct {
	Content string
	Events  []BackendEvent
}

// RunToolLoop drives the structured multi-round tool-calling protocol of
// spec §4.11: up to 5 rounds, executing every requested tool call in
// parallel each round, forcing a textual answer on the final round by
// omitting tools from the request.
func (rt *Runtime) RunToolLoop(ctx context.Context, messages []llm.Message, toolSpecs []tools.ToolSpec, sink llm.TokenSink) (ToolLoopResult, error) {
	llmTools := toLLMToolSpecs(toolSpecs)
	msgs := append([]llm.Message(nil), messages...)

	var events []BackendEvent
	var lastToolOutputs []string

	for round := 0; round < maxToolLoopRounds; round++ {
		req := llm.ChatRequest{Messages: msgs}
		if round < maxToolLoopRounds-1 {
			req.Tools = llmTools
		}

		resp, err := rt.router.ChatMessagesStream(ctx, rt.primary(), req, sink)
		if err != nil {
			return ToolLoopResult{}, fmt.Errorf("runtime: tool loop llm call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return ToolLoopResult{Content: resp.Content, Events: events}, nil
		}

		msgs = append(msgs, llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})

		outputs := rt.executeToolCallsParallel(ctx, resp.ToolCalls, &events)
		lastToolOutputs = outputs
		for i, call := range resp.ToolCalls {
			msgs = append(msgs, llm.Message{Role: "tool", Content: outputs[i], ToolCallID: call.ID})
		}
	}

	// Every round requested tools and none returned a final textual answer;
	// synthesize one from the last round's raw tool outputs.
	return ToolLoopResult{Content: synthesizeDigest(lastToolOutputs), Events: events}, nil
}

func (rt *Runtime) executeToolCallsParallel(ctx context.Context, calls []llm.ToolCallResponse, events *[]BackendEvent) []string {
	outputs := make([]string, len(calls))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCallResponse) {
			defer wg.Done()
			mu.Lock()
			*events = append(*events, EventToolCallStart(call.Name, call.ID))
			mu.Unlock()

			args := stringifyToolArgs(call.Args)
			out, err := rt.registry.Run(ctx, call.Name, args)
			result := out.Output
			if err != nil {
				result = fmt.Sprintf("tool execution error: %v", err)
			}
			outputs[i] = result

			mu.Lock()
			*events = append(*events, EventToolCallEnd(call.Name, call.ID))
			mu.Unlock()
		}(i, call)
	}
	wg.Wait()
	return outputs
}

func stringifyToolArgs(args map[string]interface{}) map[string]string {
	return LlmToolCall{Args: args}.StringifyArgs()
}

// synthesizeDigest builds a fallback textual answer from raw tool outputs
// when every round of the loop requested tools and none produced a final
// textual response, so the user still sees something (spec §8).
func synthesizeDigest(outputs []string) string {
	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for _, o := range outputs {
		if strings.TrimSpace(o) == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(o)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func toLLMToolSpecs(specs []tools.ToolSpec) []llm.ToolSpec {
	out := make([]llm.ToolSpec, len(specs))
	for i, s := range specs {
		out[i] = llm.ToolSpec{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}
