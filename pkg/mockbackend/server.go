// Package mockbackend implements a deterministic Chat Completions endpoint
// that speaks the same wire format as Groq. It answers every request with a
// predictable reply derived from the request content, so the client and the
// CLI can be exercised without network access or credentials.
//
// Behavior is selected by the request:
//
//   - a model named "error-<status>" fails with that HTTP status and an
//     OpenAI-style error body
//   - a model named "error-midstream" breaks the response after the first
//     piece of output
//   - declared tools produce a tool call to the first tool, unless the last
//     message already carries a tool result
//   - everything else echoes the last user message
package mockbackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/debug"
	"github.com/rhuss/groqchat/pkg/observability"
)

// ChatCompletionsPath is the route served for completions. It matches the
// path of the hosted endpoint so only the host has to change.
const ChatCompletionsPath = "/openai/v1/chat/completions"

// ModelsPath lists the models the backend claims to serve.
const ModelsPath = "/openai/v1/models"

// DefaultModel is reported when a request names no model.
const DefaultModel = "mock-model"

// Config configures a Server.
type Config struct {
	// Keys are the accepted bearer credentials. When empty, any non-empty
	// bearer credential is accepted.
	Keys []string

	// ChunkDelay is the pause between streamed chunks.
	ChunkDelay time.Duration

	// Now returns the creation time stamped on responses. Defaults to
	// time.Now.
	Now func() time.Time
}

// Server is the mock completion endpoint.
type Server struct {
	cfg  Config
	auth *keyAuthenticator
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		cfg:  cfg,
		auth: newKeyAuthenticator(cfg.Keys),
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)
		r.Post(ChatCompletionsPath, s.handleChatCompletions)
		r.Get(ModelsPath, s.handleModels)
	})

	return r
}

// chatRequest is the subset of the request body the backend inspects.
type chatRequest struct {
	Model    string            `json:"model"`
	Messages json.RawMessage   `json:"messages"`
	Tools    []completion.Tool `json:"tools,omitempty"`
	Stream   bool              `json:"stream"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	msgs, err := completion.UnmarshalMessages(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(msgs) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	if req.Model == "" {
		req.Model = DefaultModel
	}

	if status, ok := injectedStatus(req.Model); ok {
		slog.Debug("mock backend injecting error", "model", req.Model, "status", status)
		writeError(w, status, "injected failure for model "+req.Model)
		return
	}

	rep := replyFor(msgs, req.Tools)
	debug.Log("mock", "chat completion",
		"request_id", middleware.GetReqID(r.Context()),
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(msgs),
		"tool_call", rep.toolCall != nil,
	)

	if req.Stream {
		s.stream(w, r, req.Model, rep)
		return
	}

	if req.Model == midstreamModel {
		// Cut the body in half so the client sees a malformed response.
		data, _ := json.Marshal(s.response(req.Model, rep))
		w.Header().Set("Content-Type", "application/json")
		w.Write(data[:len(data)/2])
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.response(req.Model, rep))
}

func (s *Server) response(model string, rep reply) *completion.Response {
	msg := completion.ChoiceMessage{Role: string(completion.RoleAssistant)}
	if rep.toolCall != nil {
		msg.ToolCalls = []completion.ToolCall{*rep.toolCall}
	} else {
		msg.Content = rep.content
	}

	id := newID()
	return &completion.Response{
		ID:      "chatcmpl-" + id,
		Object:  "chat.completion",
		Created: s.cfg.Now().Unix(),
		Model:   model,
		Choices: []completion.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: rep.finishReason(),
		}},
		Usage: rep.usage,
		XGroq: &completion.XGroq{ID: "req_" + id},
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": DefaultModel, "object": "model", "owned_by": "groqchat-mock"},
		},
	})
}

// writeError writes an error body in the shape the hosted endpoint uses.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(completion.ErrorResponse{
		Error: completion.ErrorBody{
			Message: message,
			Type:    errorType(status),
			Code:    errorCode(status),
		},
	})
}

func errorType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

func errorCode(status int) any {
	switch status {
	case http.StatusUnauthorized:
		return "invalid_api_key"
	case http.StatusNotFound:
		return "model_not_found"
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	}
	return nil
}

// lastOf returns the last message with the given role.
func lastOf(msgs []completion.Message, role completion.Role) (completion.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role() == role {
			return msgs[i], true
		}
	}
	return nil, false
}

// countTokens approximates a token count by counting words.
func countTokens(s string) int {
	return len(strings.Fields(s))
}
