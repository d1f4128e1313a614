package completion

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
)

// Response format types.
const (
	ResponseFormatText       = "text"
	ResponseFormatJSONObject = "json_object"
)

// ResponseFormat selects the output format of the model.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Stop is the stop criterion of a request: either a single token or an
// ordered list of tokens, never both.
type Stop struct {
	token  string
	tokens []string
	multi  bool
}

// StopToken returns a single-token stop criterion, encoded as a string.
func StopToken(token string) Stop {
	return Stop{token: token}
}

// StopTokens returns a multi-token stop criterion, encoded as an array.
func StopTokens(tokens ...string) Stop {
	return Stop{tokens: slices.Clone(tokens), multi: true}
}

// Token returns the single stop token, if this is a single-token criterion.
func (s Stop) Token() (string, bool) {
	return s.token, !s.multi
}

// Tokens returns a copy of the stop tokens, if this is a multi-token criterion.
func (s Stop) Tokens() ([]string, bool) {
	return slices.Clone(s.tokens), s.multi
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if s.multi {
		if s.tokens == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.tokens)
	}
	return json.Marshal(s.token)
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function. Parameters is a JSON Schema object.
type Function struct {
	Description string          `json:"description,omitempty"`
	Name        string          `json:"name,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// cloneTools copies tools including their parameter schemas.
func cloneTools(tools []Tool) []Tool {
	out := slices.Clone(tools)
	for i := range out {
		out[i].Function.Parameters = bytes.Clone(out[i].Function.Parameters)
	}
	return out
}

// FunctionTool returns a tool declaration of type "function".
func FunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{
		Type: "function",
		Function: Function{
			Description: description,
			Name:        name,
			Parameters:  parameters,
		},
	}
}

// ToolChoice controls whether and which tool the model calls.
type ToolChoice struct {
	mode     string
	function string
}

var (
	ToolChoiceNone     = ToolChoice{mode: "none"}
	ToolChoiceAuto     = ToolChoice{mode: "auto"}
	ToolChoiceRequired = ToolChoice{mode: "required"}
)

// ToolChoiceFunction forces the model to call the named function.
func ToolChoiceFunction(name string) ToolChoice {
	return ToolChoice{function: name}
}

func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.function != "" {
		return json.Marshal(struct {
			Type     string `json:"type"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		}{
			Type: "function",
			Function: struct {
				Name string `json:"name"`
			}{Name: tc.function},
		})
	}
	return json.Marshal(tc.mode)
}

// params is the request body. Field order is the wire order.
type params struct {
	LogitBias        map[string]int `json:"logit_bias,omitempty"`
	LogProbs         bool           `json:"logprobs,omitempty"`
	FrequencyPenalty float64        `json:"frequency_penalty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	Messages         []Message      `json:"messages"`
	Model            string         `json:"model"`
	N                int            `json:"n"`
	PresencePenalty  float64        `json:"presence_penalty"`
	ResponseFormat   ResponseFormat `json:"response_format"`
	Seed             *int64         `json:"seed,omitempty"`
	Stop             *Stop          `json:"stop,omitempty"`
	Stream           bool           `json:"stream"`
	Temperature      float64        `json:"temperature"`
	ToolChoice       *ToolChoice    `json:"tool_choice,omitempty"`
	Tools            []Tool         `json:"tools,omitempty"`
	TopLogProbs      *int           `json:"top_logprobs,omitempty"`
	TopP             float64        `json:"top_p"`
	User             string         `json:"user,omitempty"`
}

func defaultParams(model string) params {
	return params{
		Model:            model,
		FrequencyPenalty: 0,
		N:                1,
		PresencePenalty:  0,
		ResponseFormat:   ResponseFormat{Type: ResponseFormatText},
		Stream:           false,
		Temperature:      1,
		TopP:             1,
	}
}

// clone returns a deep copy of p.
func (p params) clone() params {
	out := p
	out.LogitBias = maps.Clone(p.LogitBias)
	out.Messages = CloneMessages(p.Messages)
	out.Tools = cloneTools(p.Tools)
	if p.MaxTokens != nil {
		v := *p.MaxTokens
		out.MaxTokens = &v
	}
	if p.Seed != nil {
		v := *p.Seed
		out.Seed = &v
	}
	if p.Stop != nil {
		v := *p.Stop
		v.tokens = slices.Clone(v.tokens)
		out.Stop = &v
	}
	if p.ToolChoice != nil {
		v := *p.ToolChoice
		out.ToolChoice = &v
	}
	if p.TopLogProbs != nil {
		v := *p.TopLogProbs
		out.TopLogProbs = &v
	}
	return out
}

// Request is a finalized set of completion parameters produced by
// Builder.Build. It cannot be modified; accessors return copies.
type Request struct {
	p params
}

// Model returns the model id.
func (r Request) Model() string { return r.p.Model }

// IsStream reports whether the request asks for a streamed response.
func (r Request) IsStream() bool { return r.p.Stream }

// Messages returns a copy of the messages carried by the request.
func (r Request) Messages() []Message { return CloneMessages(r.p.Messages) }

// withMessages returns a copy of r carrying a copy of msgs.
func (r Request) withMessages(msgs []Message) Request {
	out := Request{p: r.p.clone()}
	out.p.Messages = CloneMessages(msgs)
	return out
}

func (r Request) MarshalJSON() ([]byte, error) {
	p := r.p
	if p.Messages == nil {
		p.Messages = []Message{}
	}
	return json.Marshal(p)
}
