package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint
// over plain HTTP with server-sent-event streaming.
type OpenAIProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	log         *slog.Logger
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type openAIStreamResponse struct {
	Choices []streamChoice `json:"choices"`
	Error   *apiError      `json:"error,omitempty"`
}

type streamChoice struct {
	Delta        delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type delta struct {
	Content   string                `json:"content,omitempty"`
	ToolCalls []openAIToolCallDelta `json:"tool_calls,omitempty"`
}

// openAIToolCallDelta mirrors the wire shape of a streamed tool-call
// fragment. Index stays a pointer: some backends omit it on some or all
// chunks, and omitted is not the same thing as zero.
type openAIToolCallDelta struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

// NewOpenAIProvider builds a provider for the given endpoint. No timeout is
// set on the HTTP client: streaming responses stay open for the duration of
// a round, and the round cap is the liveness guarantee.
func NewOpenAIProvider(baseURL, apiKey, model string, temperature float64, log *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{},
		log:         log.With("component", "llm"),
	}
}

func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// ChatStream issues one streaming chat-completion request. The returned
// channel carries text and tool-call fragments in arrival order and is
// closed after a final done (or error) chunk.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	req := openAIRequest{
		Model:       p.model,
		Messages:    toWireMessages(messages),
		Temperature: p.temperature,
		Stream:      true,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if apiErr := parseErrorResponse(raw); apiErr != nil {
			return nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(raw))
	}

	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		if err := p.readStream(resp.Body, out); err != nil {
			out <- StreamChunk{Type: ChunkError, Err: err}
			return
		}
		out <- StreamChunk{Type: ChunkDone}
	}()

	return out, nil
}

// readStream consumes SSE lines until [DONE] or EOF, forwarding each delta
// as-is. Fragment reassembly is deliberately not done here: the agent loop
// owns directive identity.
func (p *OpenAIProvider) readStream(body io.Reader, out chan<- StreamChunk) error {
	reader := bufio.NewReader(body)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			return nil
		}

		var streamResp openAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			// Malformed keep-alive or vendor extension; skip the line.
			continue
		}

		if streamResp.Error != nil {
			return fmt.Errorf("LLM API error: %s", streamResp.Error.Message)
		}

		if len(streamResp.Choices) == 0 {
			continue
		}
		choice := streamResp.Choices[0]

		if choice.Delta.Content != "" {
			out <- StreamChunk{Type: ChunkText, Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			out <- StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}}
		}

		if choice.FinishReason == "stop" || choice.FinishReason == "tool_calls" {
			return nil
		}
	}
}

func toWireMessages(messages []Message) []openAIMessage {
	wire := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		wm := openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		wire = append(wire, wm)
	}
	return wire
}

func parseErrorResponse(body []byte) *apiError {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return nil
	}
	return errResp.Error
}
