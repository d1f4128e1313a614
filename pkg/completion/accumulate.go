package completion

import (
	"slices"
	"strings"
)

// toolCallBuffer assembles one tool call whose arguments arrive in
// fragments across chunks.
type toolCallBuffer struct {
	id   string
	typ  string
	name string
	args strings.Builder
}

type choiceBuffer struct {
	role         string
	content      strings.Builder
	finishReason string
	toolCalls    map[int]*toolCallBuffer
}

// Accumulate folds the chunks of a finished stream into a Response, as if
// the same completion had been requested without streaming. It returns nil
// when chunks is empty.
func Accumulate(chunks []StreamChunk) *Response {
	if len(chunks) == 0 {
		return nil
	}

	first := chunks[0]
	resp := &Response{
		ID:                first.ID,
		Object:            "chat.completion",
		Created:           first.Created,
		Model:             first.Model,
		SystemFingerprint: first.SystemFingerprint,
	}

	choices := make(map[int]*choiceBuffer)
	for i := range chunks {
		chunk := &chunks[i]
		if chunk.SystemFingerprint != "" {
			resp.SystemFingerprint = chunk.SystemFingerprint
		}
		if u := chunk.FinalUsage(); u != nil {
			resp.Usage = *u
		}
		if chunk.XGroq != nil {
			xg := *chunk.XGroq
			resp.XGroq = &xg
		}

		for _, cc := range chunk.Choices {
			buf, ok := choices[cc.Index]
			if !ok {
				buf = &choiceBuffer{toolCalls: make(map[int]*toolCallBuffer)}
				choices[cc.Index] = buf
			}
			if cc.Delta.Role != "" {
				buf.role = cc.Delta.Role
			}
			buf.content.WriteString(cc.Delta.Content)
			if cc.FinishReason != nil {
				buf.finishReason = *cc.FinishReason
			}

			for _, tcd := range cc.Delta.ToolCalls {
				tb, ok := buf.toolCalls[tcd.Index]
				if !ok {
					tb = &toolCallBuffer{}
					buf.toolCalls[tcd.Index] = tb
				}
				if tcd.ID != "" {
					tb.id = tcd.ID
				}
				if tcd.Type != "" {
					tb.typ = tcd.Type
				}
				if tcd.Function.Name != "" {
					tb.name = tcd.Function.Name
				}
				tb.args.WriteString(tcd.Function.Arguments)
			}
		}
	}

	indexes := make([]int, 0, len(choices))
	for idx := range choices {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	resp.Choices = make([]Choice, 0, len(indexes))
	for _, idx := range indexes {
		buf := choices[idx]
		role := buf.role
		if role == "" {
			role = string(RoleAssistant)
		}
		resp.Choices = append(resp.Choices, Choice{
			Index: idx,
			Message: ChoiceMessage{
				Role:      role,
				Content:   buf.content.String(),
				ToolCalls: buf.assembleToolCalls(),
			},
			FinishReason: buf.finishReason,
		})
	}
	return resp
}

func (b *choiceBuffer) assembleToolCalls() []ToolCall {
	if len(b.toolCalls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(b.toolCalls))
	for idx := range b.toolCalls {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		tb := b.toolCalls[idx]
		typ := tb.typ
		if typ == "" {
			typ = "function"
		}
		calls = append(calls, ToolCall{
			ID:   tb.id,
			Type: typ,
			Function: FunctionCall{
				Name:      tb.name,
				Arguments: tb.args.String(),
			},
		})
	}
	return calls
}
