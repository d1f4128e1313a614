package completion

import (
	"encoding/json"
	"time"
)

// Usage holds token counters for a completion. The timing fields are
// reported by Groq in seconds and are zero for other backends.
type Usage struct {
	QueueTime        float64 `json:"queue_time,omitempty"`
	PromptTokens     int     `json:"prompt_tokens"`
	PromptTime       float64 `json:"prompt_time,omitempty"`
	CompletionTokens int     `json:"completion_tokens"`
	CompletionTime   float64 `json:"completion_time,omitempty"`
	TotalTokens      int     `json:"total_tokens"`
	TotalTime        float64 `json:"total_time,omitempty"`
}

// XGroq is Groq's provider-specific envelope. On the terminal chunk of a
// stream it carries the usage counters of the whole completion.
type XGroq struct {
	ID    string `json:"id,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
}

// Response is a buffered (non-streaming) completion.
type Response struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	XGroq             *XGroq   `json:"x_groq,omitempty"`
}

// CreatedAt returns the creation timestamp.
func (r *Response) CreatedAt() time.Time {
	return time.Unix(r.Created, 0).UTC()
}

// Content returns the content of the first choice, or "" if there is none.
func (r *Response) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice is one candidate completion.
type Choice struct {
	Index        int             `json:"index"`
	Message      ChoiceMessage   `json:"message"`
	FinishReason string          `json:"finish_reason"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
}

// ChoiceMessage is the full message of a choice.
type ChoiceMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// AsMessage converts the choice message into an AssistantMessage suitable
// for appending to a Client's history.
func (m ChoiceMessage) AsMessage() AssistantMessage {
	return AssistantMessage{
		Content:   m.Content,
		ToolCalls: append([]ToolCall(nil), m.ToolCalls...),
	}
}

// StreamChunk is one event of a streamed completion.
type StreamChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
	XGroq             *XGroq        `json:"x_groq,omitempty"`
}

// FinalUsage returns the usage counters carried by the chunk, either in the
// x_groq envelope or at the top level, or nil when the chunk has none.
func (c *StreamChunk) FinalUsage() *Usage {
	if c.XGroq != nil && c.XGroq.Usage != nil {
		return c.XGroq.Usage
	}
	return c.Usage
}

// ChunkChoice is the partial state of one choice within a chunk.
type ChunkChoice struct {
	Index        int             `json:"index"`
	Delta        Delta           `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
}

// Delta is the increment a chunk adds to a choice.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is an incremental tool call. The first delta for an index
// carries the id and function name; later ones append to the arguments.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// ErrorResponse is the error body returned by the endpoint. The HTTP status
// is not part of the body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the structured error payload.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
