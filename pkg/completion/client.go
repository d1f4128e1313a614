package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/groqchat/pkg/debug"
	"github.com/rhuss/groqchat/pkg/observability"
)

// DefaultEndpoint is the Groq chat completions endpoint.
const DefaultEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// clearedCapacity is the capacity kept by ClearMessages, sized for a
// typical system/user/assistant exchange.
const clearedCapacity = 3

// Config holds the settings for a Client.
type Config struct {
	// APIKey is sent as a bearer credential on every request.
	APIKey string

	// Endpoint overrides DefaultEndpoint.
	Endpoint string

	// Timeout bounds buffered calls. Zero means no timeout. Streaming
	// calls are never subject to it; use the context instead.
	Timeout time.Duration

	// HTTPClient supplies the transport. When nil, a client using
	// http.DefaultTransport is created.
	HTTPClient *http.Client
}

// Client sends chat completion requests and owns the conversation history
// that is merged into every request. It is safe for concurrent use.
type Client struct {
	apiKey   string
	endpoint string

	httpClient   *http.Client
	streamClient *http.Client

	mu       sync.RWMutex
	messages []Message
}

// Completion is the result of Create. Exactly one of Response or Chunks is
// set, depending on the stream flag of the request.
type Completion struct {
	Response *Response
	Chunks   []StreamChunk
}

// IsStream reports whether the completion came from a streaming call.
func (c *Completion) IsStream() bool {
	return c.Response == nil
}

// New creates a Client for the default endpoint.
func New(apiKey string) *Client {
	return NewWithConfig(Config{APIKey: apiKey})
}

// NewWithConfig creates a Client from cfg.
func NewWithConfig(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	} else if cfg.Timeout > 0 {
		hc := *httpClient
		hc.Timeout = cfg.Timeout
		httpClient = &hc
	}

	// Streams can legitimately outlast any fixed timeout. The context
	// controls their lifetime.
	streamClient := &http.Client{
		Transport:     httpClient.Transport,
		CheckRedirect: httpClient.CheckRedirect,
		Jar:           httpClient.Jar,
	}

	return &Client{
		apiKey:       cfg.APIKey,
		endpoint:     endpoint,
		httpClient:   httpClient,
		streamClient: streamClient,
	}
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// AddMessage appends a copy of msg to the history. Later changes through
// a pointer variant do not reach the history.
func (c *Client) AddMessage(msg Message) {
	c.AddMessages(msg)
}

// AddMessages appends copies of msgs to the history in order.
func (c *Client) AddMessages(msgs ...Message) {
	copied := CloneMessages(msgs)
	c.mu.Lock()
	c.messages = append(c.messages, copied...)
	c.mu.Unlock()
}

// ClearMessages empties the history and releases most of its storage.
func (c *Client) ClearMessages() {
	c.mu.Lock()
	c.messages = make([]Message, 0, clearedCapacity)
	c.mu.Unlock()
}

// Messages returns a copy of the history.
func (c *Client) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CloneMessages(c.messages)
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// RequestBody returns the payload that a dispatch of req would send: req
// merged with a copy of the current history.
func (c *Client) RequestBody(req Request) ([]byte, error) {
	_, body, err := c.prepare(req, req.IsStream())
	return body, err
}

// Create dispatches req on the path selected by its stream flag.
func (c *Client) Create(ctx context.Context, req Request) (*Completion, error) {
	if req.IsStream() {
		chunks, err := c.CreateStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Completion{Chunks: chunks}, nil
	}

	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Completion{Response: resp}, nil
}

// Complete performs a buffered completion. req must not have the stream
// flag set.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	merged, body, err := c.prepare(req, false)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.complete(ctx, merged.Model(), body)
	observability.RecordCompletion("buffered", merged.Model(), outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	observability.RecordTokens(merged.Model(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (c *Client) complete(ctx context.Context, model string, body []byte) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, body, false)
	if err != nil {
		return nil, err
	}

	debug.Log("client", "dispatching completion", "model", model, "endpoint", c.endpoint, "bytes", len(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		e := mapHTTPError(httpResp)
		debug.Log("client", "completion failed", "status", httpResp.StatusCode, "kind", string(e.Kind))
		return nil, e
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{
			Kind:       KindTransport,
			StatusCode: httpResp.StatusCode,
			Message:    "reading response body",
			Cause:      err,
		}
	}
	debug.Body("client", "completion response", data)

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, newDecodeError(httpResp.StatusCode,
			fmt.Sprintf("undecodable response body: %s", debug.Truncate(string(data), 200)), err)
	}

	debug.Log("client", "completion done", "id", resp.ID, "choices", len(resp.Choices),
		"total_tokens", resp.Usage.TotalTokens)
	return &resp, nil
}

// CreateStream performs a streaming completion and returns every chunk in
// arrival order once the stream has finished. req must have the stream
// flag set.
func (c *Client) CreateStream(ctx context.Context, req Request) ([]StreamChunk, error) {
	merged, body, err := c.prepare(req, true)
	if err != nil {
		return nil, err
	}

	model := merged.Model()
	start := time.Now()
	chunks, err := c.stream(ctx, model, body, start)
	observability.RecordCompletion("stream", model, outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	for i := len(chunks) - 1; i >= 0; i-- {
		if u := chunks[i].FinalUsage(); u != nil {
			observability.RecordTokens(model, u.PromptTokens, u.CompletionTokens)
			break
		}
	}
	return chunks, nil
}

func (c *Client) stream(ctx context.Context, model string, body []byte, start time.Time) ([]StreamChunk, error) {
	httpReq, err := c.newHTTPRequest(ctx, body, true)
	if err != nil {
		return nil, err
	}

	debug.Log("streaming", "opening stream", "model", model, "endpoint", c.endpoint, "bytes", len(body))

	httpResp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		e := mapHTTPError(httpResp)
		debug.Log("streaming", "stream rejected", "status", httpResp.StatusCode, "kind", string(e.Kind))
		return nil, e
	}

	if !isEventStream(httpResp.Header.Get("Content-Type")) {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	closed := observability.StreamOpened()
	defer closed()

	first := true
	onChunk := func(chunk *StreamChunk) {
		if first {
			first = false
			observability.StreamFirstChunkLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
		}
		observability.StreamChunksTotal.WithLabelValues(model).Inc()
		if debug.TraceIsEnabled("streaming") {
			data, _ := json.Marshal(chunk)
			debug.Trace("streaming", "chunk", "data", string(data))
		}
	}

	return consume(ctx, newHTTPEventSource(httpResp), onChunk)
}

// prepare checks req against the dispatch mode, merges it with a snapshot
// of the history and encodes it. Nothing is sent.
func (c *Client) prepare(req Request, wantStream bool) (Request, []byte, error) {
	if req.IsStream() != wantStream {
		msg := "stream flag set on a buffered call"
		if wantStream {
			msg = "stream flag not set on a streaming call"
		}
		return Request{}, nil, newValidationError(ErrStreamMismatch, msg)
	}

	history := c.Messages()
	if len(history) == 0 {
		return Request{}, nil, newValidationError(ErrEmptyHistory, "no messages to send")
	}
	for i, m := range history {
		if m == nil {
			return Request{}, nil, newValidationError(ErrInvalidMessage, fmt.Sprintf("messages[%d] is nil", i))
		}
		if err := m.Validate(); err != nil {
			return Request{}, nil, newValidationError(err, fmt.Sprintf("messages[%d]: %s", i, err.Error()))
		}
	}

	merged := req.withMessages(history)
	body, err := json.Marshal(merged)
	if err != nil {
		return Request{}, nil, newValidationError(err, "encoding request")
	}
	return merged, body, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, body []byte, stream bool) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newTransportError("building HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	debug.Body("client", "request body", body)
	return httpReq, nil
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/event-stream"
}

// outcome maps a dispatch error to a metrics label.
func outcome(err error) string {
	if err == nil {
		return observability.OutcomeOK
	}
	if e, ok := AsError(err); ok {
		return string(e.Kind)
	}
	return "unknown"
}
