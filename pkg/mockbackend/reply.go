package mockbackend

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rhuss/groqchat/pkg/completion"
)

const (
	errorModelPrefix = "error-"
	midstreamModel   = "error-midstream"
)

// reply is the canned answer to one request.
type reply struct {
	content  string
	toolCall *completion.ToolCall
	usage    completion.Usage
}

func (r reply) finishReason() string {
	if r.toolCall != nil {
		return "tool_calls"
	}
	return "stop"
}

// replyFor derives the answer from the conversation. Declared tools yield a
// call to the first tool until a tool result comes back, which is then
// acknowledged. Otherwise the last user message is echoed.
func replyFor(msgs []completion.Message, tools []completion.Tool) reply {
	var rep reply

	last := msgs[len(msgs)-1]
	switch {
	case last.Role() == completion.RoleTool:
		tm := last.(completion.ToolMessage)
		rep.content = "tool result: " + tm.Content
	case len(tools) > 0:
		rep.toolCall = &completion.ToolCall{
			ID:   "call_" + newID(),
			Type: "function",
			Function: completion.FunctionCall{
				Name:      tools[0].Function.Name,
				Arguments: "{}",
			},
		}
	default:
		rep.content = "echo:"
		if m, ok := lastOf(msgs, completion.RoleUser); ok {
			if text := m.(completion.UserMessage).Content; text != "" {
				rep.content += " " + text
			}
		}
	}

	prompt := 0
	for _, m := range msgs {
		prompt += countTokens(contentOf(m))
	}
	output := countTokens(rep.content)
	if rep.toolCall != nil {
		output = 1
	}
	rep.usage = completion.Usage{
		PromptTokens:     prompt,
		CompletionTokens: output,
		TotalTokens:      prompt + output,
	}
	return rep
}

func contentOf(m completion.Message) string {
	switch v := m.(type) {
	case completion.SystemMessage:
		return v.Content
	case completion.UserMessage:
		return v.Content
	case completion.AssistantMessage:
		return v.Content
	case completion.ToolMessage:
		return v.Content
	}
	return ""
}

// injectedStatus reports the status requested by an "error-<status>" model
// name. Only 4xx and 5xx codes are honored.
func injectedStatus(model string) (int, bool) {
	code, ok := strings.CutPrefix(model, errorModelPrefix)
	if !ok {
		return 0, false
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 400 || status > 599 {
		return 0, false
	}
	return status, true
}

// pieces splits content into the fragments sent as stream deltas, keeping
// the separating spaces so the fragments concatenate to the original.
func pieces(content string) []string {
	if content == "" {
		return nil
	}
	return strings.SplitAfter(content, " ")
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
