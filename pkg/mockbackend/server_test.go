package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/groqchat/pkg/completion"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, key string) *completion.Client {
	return completion.NewWithConfig(completion.Config{
		APIKey:   key,
		Endpoint: srv.URL + ChatCompletionsPath,
	})
}

func TestComplete_EchoesLastUserMessage(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := newClient(srv, "gsk_test")
	c.AddMessages(
		completion.SystemMessage{Content: "be brief"},
		completion.UserMessage{Content: "hello there"},
	)

	resp, err := c.Complete(context.Background(), completion.NewBuilder("llama3-8b-8192").Build())
	if err != nil {
		t.Fatalf("Complete error = %v", err)
	}

	if got := resp.Content(); got != "echo: hello there" {
		t.Errorf("content = %q, want %q", got, "echo: hello there")
	}
	if resp.Model != "llama3-8b-8192" {
		t.Errorf("model = %q", resp.Model)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("id = %q, want chatcmpl- prefix", resp.ID)
	}
	if resp.Created != fixedNow.Unix() {
		t.Errorf("created = %d, want %d", resp.Created, fixedNow.Unix())
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q", resp.Choices[0].FinishReason)
	}
	// "be brief" + "hello there" prompt, "echo: hello there" output.
	want := completion.Usage{PromptTokens: 4, CompletionTokens: 3, TotalTokens: 7}
	if resp.Usage != want {
		t.Errorf("usage = %+v, want %+v", resp.Usage, want)
	}
}

func TestCreateStream_ReassemblesEcho(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := newClient(srv, "gsk_test")
	c.AddMessage(completion.UserMessage{Content: "stream this please"})

	chunks, err := c.CreateStream(context.Background(),
		completion.NewBuilder("llama3-8b-8192").WithStream(true).Build())
	if err != nil {
		t.Fatalf("CreateStream error = %v", err)
	}

	// role + 4 content pieces + terminal chunk
	if len(chunks) != 6 {
		t.Fatalf("got %d chunks, want 6", len(chunks))
	}

	resp := completion.Accumulate(chunks)
	if got := resp.Content(); got != "echo: stream this please" {
		t.Errorf("content = %q", got)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q", resp.Choices[0].FinishReason)
	}

	final := chunks[len(chunks)-1]
	if final.XGroq == nil || final.XGroq.Usage == nil {
		t.Fatal("terminal chunk has no x_groq usage")
	}
	if final.XGroq.Usage.TotalTokens != 7 {
		t.Errorf("total_tokens = %d, want 7", final.XGroq.Usage.TotalTokens)
	}
	for i, ch := range chunks {
		if ch.ID != chunks[0].ID {
			t.Errorf("chunk[%d] id = %q, want %q", i, ch.ID, chunks[0].ID)
		}
	}
}

func TestComplete_ToolCall(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := newClient(srv, "gsk_test")
	c.AddMessage(completion.UserMessage{Content: "weather in Paris?"})

	tools := []completion.Tool{
		completion.FunctionTool("get_weather", "Current weather", json.RawMessage(`{"type":"object"}`)),
	}
	req := completion.NewBuilder("m").WithTools(tools).WithAutoToolChoice().Build()

	resp, err := c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete error = %v", err)
	}

	choice := resp.Choices[0]
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q, want tool_calls", choice.FinishReason)
	}
	if len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(choice.Message.ToolCalls))
	}
	call := choice.Message.ToolCalls[0]
	if call.Function.Name != "get_weather" || call.Function.Arguments != "{}" {
		t.Errorf("tool call = %+v", call)
	}
	if !strings.HasPrefix(call.ID, "call_") {
		t.Errorf("tool call id = %q", call.ID)
	}

	// Feed the result back; the backend acknowledges it.
	c.AddMessages(
		choice.Message.AsMessage(),
		completion.ToolMessage{Content: "sunny", ToolCallID: call.ID},
	)
	resp, err = c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("second Complete error = %v", err)
	}
	if got := resp.Content(); got != "tool result: sunny" {
		t.Errorf("content = %q", got)
	}
}

func TestCreateStream_ToolCall(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := newClient(srv, "gsk_test")
	c.AddMessage(completion.UserMessage{Content: "call it"})

	tools := []completion.Tool{completion.FunctionTool("lookup", "", nil)}
	chunks, err := c.CreateStream(context.Background(),
		completion.NewBuilder("m").WithTools(tools).WithStream(true).Build())
	if err != nil {
		t.Fatalf("CreateStream error = %v", err)
	}

	resp := completion.Accumulate(chunks)
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(calls))
	}
	if calls[0].Function.Name != "lookup" || calls[0].Function.Arguments != "{}" {
		t.Errorf("tool call = %+v", calls[0])
	}
	if resp.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q", resp.Choices[0].FinishReason)
	}
}

func TestErrorInjection(t *testing.T) {
	srv := newTestServer(t, Config{})

	tests := []struct {
		model     string
		status    int
		errorType string
		code      string
	}{
		{"error-400", 400, "invalid_request_error", ""},
		{"error-404", 404, "invalid_request_error", "model_not_found"},
		{"error-429", 429, "rate_limit_error", "rate_limit_exceeded"},
		{"error-503", 503, "server_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			c := newClient(srv, "gsk_test")
			c.AddMessage(completion.UserMessage{Content: "hi"})

			_, err := c.Complete(context.Background(), completion.NewBuilder(tt.model).Build())
			ce, ok := completion.AsError(err)
			if !ok {
				t.Fatalf("error = %v, want *completion.Error", err)
			}
			if ce.Kind != completion.KindAPI {
				t.Errorf("kind = %q, want api", ce.Kind)
			}
			if ce.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", ce.StatusCode, tt.status)
			}
			if ce.Type != tt.errorType {
				t.Errorf("type = %q, want %q", ce.Type, tt.errorType)
			}
			if ce.Code != tt.code {
				t.Errorf("code = %q, want %q", ce.Code, tt.code)
			}
		})
	}
}

func TestErrorInjection_IgnoresNonErrorStatus(t *testing.T) {
	for _, model := range []string{"error-200", "error-abc", "error-"} {
		if _, ok := injectedStatus(model); ok {
			t.Errorf("injectedStatus(%q) = true, want false", model)
		}
	}
}

func TestMidstream_Stream(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := newClient(srv, "gsk_test")
	c.AddMessage(completion.UserMessage{Content: "hi"})

	chunks, err := c.CreateStream(context.Background(),
		completion.NewBuilder(midstreamModel).WithStream(true).Build())
	if chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
	if !completion.IsTransport(err) {
		t.Fatalf("error = %v, want transport error", err)
	}
	if !errors.Is(err, completion.ErrStreamTruncated) {
		t.Errorf("error = %v, want ErrStreamTruncated", err)
	}
}

func TestMidstream_Buffered(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := newClient(srv, "gsk_test")
	c.AddMessage(completion.UserMessage{Content: "hi"})

	_, err := c.Complete(context.Background(), completion.NewBuilder(midstreamModel).Build())
	if !completion.IsDecode(err) {
		t.Fatalf("error = %v, want decode error", err)
	}
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		header string
		want   int
	}{
		{"missing header", nil, "", http.StatusUnauthorized},
		{"wrong scheme", nil, "Basic abc", http.StatusUnauthorized},
		{"empty bearer", nil, "Bearer ", http.StatusUnauthorized},
		{"any key accepted", nil, "Bearer anything", http.StatusOK},
		{"configured key", []string{"k1", "k2"}, "Bearer k2", http.StatusOK},
		{"unknown key", []string{"k1"}, "Bearer k3", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Config{Keys: tt.keys})

			body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
			req, _ := http.NewRequest(http.MethodPost, srv.URL+ChatCompletionsPath, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAuth_ClientSurfacesAPIError(t *testing.T) {
	srv := newTestServer(t, Config{Keys: []string{"right"}})
	c := newClient(srv, "wrong")
	c.AddMessage(completion.UserMessage{Content: "hi"})

	_, err := c.Complete(context.Background(), completion.NewBuilder("m").Build())
	ce, ok := completion.AsError(err)
	if !ok || ce.StatusCode != http.StatusUnauthorized || ce.Code != "invalid_api_key" {
		t.Fatalf("error = %v, want 401 invalid_api_key", err)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown role", `{"model":"m","messages":[{"role":"robot","content":"x"}]}`},
		{"no messages", `{"model":"m","messages":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+ChatCompletionsPath, strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer k")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var er completion.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if er.Error.Type != "invalid_request_error" || er.Error.Message == "" {
				t.Errorf("error body = %+v", er)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestModels(t *testing.T) {
	srv := newTestServer(t, Config{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+ModelsPath, nil)
	req.Header.Set("Authorization", "Bearer k")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET models error = %v", err)
	}
	defer resp.Body.Close()

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != DefaultModel {
		t.Errorf("models = %+v", list.Data)
	}
}

func TestPieces(t *testing.T) {
	got := pieces("echo: a b")
	want := []string{"echo: ", "a ", "b"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("pieces = %q, want %q", got, want)
	}
	if pieces("") != nil {
		t.Error("pieces(\"\") should be nil")
	}
}

func TestStream_ClientCancelStopsDelayedStream(t *testing.T) {
	srv := newTestServer(t, Config{ChunkDelay: 50 * time.Millisecond})
	c := newClient(srv, "gsk_test")
	c.AddMessage(completion.UserMessage{Content: "one two three four five six"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CreateStream(ctx, completion.NewBuilder("m").WithStream(true).Build())
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}
