package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jeanpaul/memoria/internal/config"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint
// (LM Studio, llama.cpp server, vLLM, Ollama's /v1).
type OpenAIProvider struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

type Option func(*OpenAIProvider)

// WithTimeouts sets the dial timeout and the time allowed until response
// headers arrive.
func WithTimeouts(connect, read time.Duration) Option {
	return func(o *OpenAIProvider) {
		o.client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			ResponseHeaderTimeout: read,
		}}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAIProvider) { o.client = c }
}

func WithTemperature(t float64) Option {
	return func(o *OpenAIProvider) { o.temperature = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *OpenAIProvider) {
		if l != nil {
			o.logger = l
		}
	}
}

func NewOpenAI(name, baseURL, apiKey, model string, opts ...Option) *OpenAIProvider {
	o := &OpenAIProvider{
		name:        name,
		baseURL:     normalizeBaseURL(baseURL),
		apiKey:      apiKey,
		model:       model,
		temperature: 0.7,
		logger:      slog.Default(),
	}
	WithTimeouts(5*time.Second, 120*time.Second)(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// normalizeBaseURL accepts both "http://host:1234" and "http://host:1234/v1".
func normalizeBaseURL(u string) string {
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u
}

func (o *OpenAIProvider) Name() string { return o.name }

func (o *OpenAIProvider) ModelName() string { return o.model }

func (o *OpenAIProvider) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	o.authorize(req)
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "list models", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: parseProviderError(resp.StatusCode, body)}
	}
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	models := make([]string, len(result.Data))
	for i, m := range result.Data {
		models[i] = m.ID
	}
	return models, nil
}

type oaiRequest struct {
	Model       string       `json:"model,omitempty"`
	Messages    []oaiMessage `json:"messages"`
	Stream      bool         `json:"stream"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type oaiToolCall struct {
	Index    *int            `json:"index,omitempty"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function oaiToolCallFunc `json:"function"`
}

type oaiToolCallFunc struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content   *string       `json:"content"`
			ToolCalls []oaiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *oaiUsage `json:"usage,omitempty"`
}

type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
	Usage   *oaiUsage         `json:"usage,omitempty"`
}

type oaiStreamChoice struct {
	Delta        oaiDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

type oaiDelta struct {
	Content   string        `json:"content"`
	ToolCalls []oaiToolCall `json:"tool_calls"`
}

func (o *OpenAIProvider) buildRequest(req Request, stream bool) oaiRequest {
	msgs := make([]oaiMessage, len(req.Messages))
	for i, m := range req.Messages {
		om := oaiMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaiToolCallFunc{Name: tc.Name, Arguments: tc.Args},
			})
		}
		msgs[i] = om
	}

	// tool_choice is deliberately absent: some local backends rewrite the
	// system message when it is set, dropping core memory from context.
	var tools []oaiTool
	for _, t := range req.Tools {
		tools = append(tools, oaiTool{
			Type:     "function",
			Function: oaiFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	temp := req.Temperature
	if temp == 0 {
		temp = o.temperature
	}
	return oaiRequest{
		Model:       o.model,
		Messages:    msgs,
		Stream:      stream,
		Tools:       tools,
		MaxTokens:   req.EffectiveMaxTokens(),
		Temperature: temp,
	}
}

func (o *OpenAIProvider) authorize(req *http.Request) {
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
}

// post sends the request and returns the open response on HTTP 200.
func (o *OpenAIProvider) post(ctx context.Context, body oaiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	o.logger.Log(ctx, config.LevelTrace, "completion request", "provider", o.name, "payload", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	o.authorize(httpReq)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: "POST /chat/completions", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: parseProviderError(resp.StatusCode, raw)}
	}
	return resp, nil
}

func (o *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp, err := o.post(ctx, o.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read response", Err: err}
	}
	o.logger.Log(ctx, config.LevelTrace, "completion response", "provider", o.name, "body", string(raw))

	var parsed oaiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("provider %s: decode response: %w", o.name, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("provider %s: response has no choices", o.name)
	}

	choice := parsed.Choices[0]
	out := &Response{FinishReason: choice.FinishReason, Usage: toUsage(parsed.Usage)}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	for i, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: tc.Function.Name, Args: tc.Function.Arguments})
	}
	return out, nil
}

func (o *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp, err := o.post(ctx, o.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		acc := newStreamAccumulator()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}
			var chunk oaiStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if delta := acc.add(chunk); delta != "" {
				if !send(StreamChunk{Delta: delta}) {
					return
				}
			}
		}
		if ctx.Err() != nil {
			send(StreamChunk{Err: ctx.Err(), Done: true})
			return
		}
		if err := scanner.Err(); err != nil {
			send(StreamChunk{Err: &NetworkError{Op: "read stream", Err: err}, Done: true})
			return
		}
		final := acc.response()
		o.logger.Log(ctx, config.LevelTrace, "stream finished", "provider", o.name,
			"content_len", len(final.Content), "tool_calls", len(final.ToolCalls), "finish_reason", final.FinishReason)
		send(StreamChunk{Done: true, Response: final})
	}()
	return ch, nil
}

// streamAccumulator rebuilds a full response from SSE deltas. Tool calls
// arrive in fragments keyed by index.
type streamAccumulator struct {
	content      strings.Builder
	toolCalls    map[int]*ToolCall
	finishReason string
	usage        *Usage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{toolCalls: map[int]*ToolCall{}}
}

func (a *streamAccumulator) add(chunk oaiStreamChunk) string {
	if chunk.Usage != nil {
		a.usage = toUsage(chunk.Usage)
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	choice := chunk.Choices[0]
	a.content.WriteString(choice.Delta.Content)
	for _, tc := range choice.Delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		cur, ok := a.toolCalls[idx]
		if !ok {
			cur = &ToolCall{}
			a.toolCalls[idx] = cur
		}
		if tc.ID != "" {
			cur.ID = tc.ID
		}
		cur.Name += tc.Function.Name
		cur.Args += tc.Function.Arguments
	}
	if choice.FinishReason != nil {
		a.finishReason = *choice.FinishReason
	}
	return choice.Delta.Content
}

func (a *streamAccumulator) response() *Response {
	idxs := make([]int, 0, len(a.toolCalls))
	for i := range a.toolCalls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	out := &Response{Content: a.content.String(), FinishReason: a.finishReason, Usage: a.usage}
	for n, i := range idxs {
		tc := *a.toolCalls[i]
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("call_%d", n)
		}
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	return out
}

func toUsage(u *oaiUsage) *Usage {
	if u == nil {
		return nil
	}
	return &Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

// IsCanceled reports whether err stems from context cancellation rather
// than a provider failure.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
