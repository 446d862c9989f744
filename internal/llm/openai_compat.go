package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openaiCompatClient implements the OpenAI chat-completions wire format
// shared by Ollama and OpenRouter, generalized so both backends reuse one
// request/response mapping instead of duplicating it.
type openaiCompatClient struct {
	name      string
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
	authStyle authStyle
}

type authStyle int

const (
	authBearer authStyle = iota
	authNone
)

func newOpenAICompatClient(name, baseURL, apiKey, model string, maxTokens int, style authStyle) *openaiCompatClient {
	return &openaiCompatClient{
		name:      name,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 120 * time.Second},
		authStyle: style,
	}
}

func (c *openaiCompatClient) Name() string { return c.name }

type compatMsg struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCalls  []compatToolCall   `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

type compatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type compatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type compatRequest struct {
	Model     string       `json:"model"`
	Messages  []compatMsg  `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
	Tools     []compatTool `json:"tools,omitempty"`
	Stream    bool         `json:"stream,omitempty"`
}

type compatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []compatToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// compatStreamChunk is one SSE "data: {...}" line of a streamed completion.
type compatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string           `json:"content"`
			ToolCalls []compatToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func toCompatMessages(msgs []Message) []compatMsg {
	out := make([]compatMsg, 0, len(msgs))
	for _, m := range msgs {
		cm := compatMsg{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Args)
			call := compatToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(argsJSON)
			cm.ToolCalls = append(cm.ToolCalls, call)
		}
		out = append(out, cm)
	}
	return out
}

func toCompatTools(tools []ToolSpec) []compatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]compatTool, 0, len(tools))
	for _, t := range tools {
		ct := compatTool{Type: "function"}
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.Parameters
		out = append(out, ct)
	}
	return out
}

func toolCallResponses(calls []compatToolCall) []ToolCallResponse {
	var out []ToolCallResponse
	for _, tc := range calls {
		var args map[string]interface{}
		json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out = append(out, ToolCallResponse{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out
}

func (c *openaiCompatClient) buildRequest(req ChatRequest, stream bool) compatRequest {
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	return compatRequest{
		Model:     c.model,
		Messages:  toCompatMessages(req.Messages),
		MaxTokens: maxTokens,
		Tools:     toCompatTools(req.Tools),
		Stream:    stream,
	}
}

func (c *openaiCompatClient) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authStyle == authBearer && c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

func (c *openaiCompatClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	apiReq := c.buildRequest(req, false)
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: failed to marshal request: %w", c.name, err)
	}

	httpReq, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: failed to read response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: %s: API error (status %d): %s", c.name, resp.StatusCode, string(respBody))
	}

	var apiResp compatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("llm: %s: failed to unmarshal response: %w", c.name, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: %s: no choices in response", c.name)
	}

	choice := apiResp.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCallResponses(choice.Message.ToolCalls),
		StopReason:   choice.FinishReason,
		Provider:     c.name,
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.PromptTokens,
		OutputTokens: apiResp.Usage.CompletionTokens,
	}, nil
}

type compatEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type compatEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests a dense embedding for text from the OpenAI-compatible
// /embeddings endpoint, used by C7's vector similarity term.
func (c *openaiCompatClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(compatEmbeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("llm: %s: failed to marshal embedding request: %w", c.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: %s: failed to build embedding request: %w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authStyle == authBearer && c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: embedding request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: failed to read embedding response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: %s: embedding API error (status %d): %s", c.name, resp.StatusCode, string(respBody))
	}

	var apiResp compatEmbeddingResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("llm: %s: failed to unmarshal embedding response: %w", c.name, err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("llm: %s: no embedding data in response", c.name)
	}
	return apiResp.Data[0].Embedding, nil
}

func (c *openaiCompatClient) ChatStream(ctx context.Context, req ChatRequest, sink TokenSink) (*ChatResponse, error) {
	apiReq := c.buildRequest(req, true)
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: failed to marshal request: %w", c.name, err)
	}

	httpReq, err := c.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm: %s: API error (status %d): %s", c.name, resp.StatusCode, string(respBody))
	}

	result := &ChatResponse{Provider: c.name}
	var toolCalls []compatToolCall
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk compatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Model != "" {
			result.Model = chunk.Model
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				result.Content += ch.Delta.Content
				if sink != nil {
					sink(ch.Delta.Content)
				}
			}
			if len(ch.Delta.ToolCalls) > 0 {
				toolCalls = append(toolCalls, ch.Delta.ToolCalls...)
			}
			if ch.FinishReason != "" {
				result.StopReason = ch.FinishReason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("llm: %s: stream read failed: %w", c.name, err)
	}
	result.ToolCalls = toolCallResponses(toolCalls)
	return result, nil
}
