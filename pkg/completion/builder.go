package completion

import "maps"

// Builder configures a Request. Every With method returns an updated copy
// and leaves the receiver unchanged, so builders derived from a common
// origin never observe each other's settings.
//
// Messages are not set on the builder. The Client owns the conversation
// history and merges it into the request at dispatch time.
type Builder struct {
	p params
}

// NewBuilder returns a builder for model with the endpoint defaults:
// frequency_penalty=0, presence_penalty=0, n=1, temperature=1, top_p=1,
// stream=false and a text response format.
func NewBuilder(model string) Builder {
	return Builder{p: defaultParams(model)}
}

// Build finalizes the builder into an immutable Request.
func (b Builder) Build() Request {
	return Request{p: b.p.clone()}
}

// IsStream reports whether the stream flag is set.
func (b Builder) IsStream() bool {
	return b.p.Stream
}

func (b Builder) WithModel(model string) Builder {
	b.p.Model = model
	return b
}

// WithLogitBias maps token ids to a bias between -100 and 100.
func (b Builder) WithLogitBias(bias map[string]int) Builder {
	b.p.LogitBias = maps.Clone(bias)
	return b
}

func (b Builder) WithLogProbs(enabled bool) Builder {
	b.p.LogProbs = enabled
	return b
}

func (b Builder) WithFrequencyPenalty(penalty float64) Builder {
	b.p.FrequencyPenalty = penalty
	return b
}

func (b Builder) WithMaxTokens(n int) Builder {
	b.p.MaxTokens = &n
	return b
}

func (b Builder) WithN(n int) Builder {
	b.p.N = n
	return b
}

func (b Builder) WithPresencePenalty(penalty float64) Builder {
	b.p.PresencePenalty = penalty
	return b
}

func (b Builder) WithResponseFormat(format ResponseFormat) Builder {
	b.p.ResponseFormat = format
	return b
}

func (b Builder) WithSeed(seed int64) Builder {
	b.p.Seed = &seed
	return b
}

// WithStop sets a single stop token, replacing any previous stop criterion.
func (b Builder) WithStop(token string) Builder {
	s := StopToken(token)
	b.p.Stop = &s
	return b
}

// WithStops sets a list of stop tokens, replacing any previous stop criterion.
func (b Builder) WithStops(tokens []string) Builder {
	s := StopTokens(tokens...)
	b.p.Stop = &s
	return b
}

func (b Builder) WithStream(stream bool) Builder {
	b.p.Stream = stream
	return b
}

func (b Builder) WithTemperature(temperature float64) Builder {
	b.p.Temperature = temperature
	return b
}

// WithToolChoice sets the tool choice. The zero ToolChoice clears it, so
// the field is left out of the request.
func (b Builder) WithToolChoice(choice ToolChoice) Builder {
	if choice == (ToolChoice{}) {
		b.p.ToolChoice = nil
		return b
	}
	b.p.ToolChoice = &choice
	return b
}

// WithAutoToolChoice lets the model decide whether to call a tool.
func (b Builder) WithAutoToolChoice() Builder {
	return b.WithToolChoice(ToolChoiceAuto)
}

func (b Builder) WithTools(tools []Tool) Builder {
	b.p.Tools = cloneTools(tools)
	return b
}

func (b Builder) WithTopLogProbs(n int) Builder {
	b.p.TopLogProbs = &n
	return b
}

func (b Builder) WithTopP(topP float64) Builder {
	b.p.TopP = topP
	return b
}

func (b Builder) WithUser(user string) Builder {
	b.p.User = user
	return b
}
