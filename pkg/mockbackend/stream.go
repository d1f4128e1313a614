package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rhuss/groqchat/pkg/completion"
)

// chunkWriter frames completion chunks as server-sent events.
type chunkWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	id      string
	model   string
	created int64
}

func (cw *chunkWriter) write(choice completion.ChunkChoice, xgroq *completion.XGroq) error {
	chunk := completion.StreamChunk{
		ID:      cw.id,
		Object:  "chat.completion.chunk",
		Created: cw.created,
		Model:   cw.model,
		Choices: []completion.ChunkChoice{choice},
		XGroq:   xgroq,
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(cw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return cw.rc.Flush()
}

func (cw *chunkWriter) done() error {
	if _, err := fmt.Fprint(cw.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return cw.rc.Flush()
}

// stream sends rep as a sequence of chunks: the role, the content pieces
// or the tool call, then a terminal chunk carrying the finish reason and
// the x_groq usage, then the [DONE] sentinel. For the midstream failure
// model the response ends right after the role chunk.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, model string, rep reply) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := newID()
	cw := &chunkWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		id:      "chatcmpl-" + id,
		model:   model,
		created: s.cfg.Now().Unix(),
	}

	var deltas []completion.Delta
	deltas = append(deltas, completion.Delta{Role: string(completion.RoleAssistant)})
	if rep.toolCall != nil {
		deltas = append(deltas,
			completion.Delta{ToolCalls: []completion.ToolCallDelta{{
				Index:    0,
				ID:       rep.toolCall.ID,
				Type:     rep.toolCall.Type,
				Function: completion.FunctionCall{Name: rep.toolCall.Function.Name},
			}}},
			completion.Delta{ToolCalls: []completion.ToolCallDelta{{
				Index:    0,
				Function: completion.FunctionCall{Arguments: rep.toolCall.Function.Arguments},
			}}},
		)
	} else {
		for _, p := range pieces(rep.content) {
			deltas = append(deltas, completion.Delta{Content: p})
		}
	}

	for i, d := range deltas {
		if err := cw.write(completion.ChunkChoice{Index: 0, Delta: d}, nil); err != nil {
			return
		}
		if model == midstreamModel {
			return
		}
		if i < len(deltas)-1 && !s.pause(r) {
			return
		}
	}

	finish := rep.finishReason()
	usage := rep.usage
	if err := cw.write(
		completion.ChunkChoice{Index: 0, FinishReason: &finish},
		&completion.XGroq{ID: "req_" + id, Usage: &usage},
	); err != nil {
		return
	}
	cw.done()
}

// pause waits ChunkDelay between chunks. It returns false when the client
// went away.
func (s *Server) pause(r *http.Request) bool {
	if s.cfg.ChunkDelay <= 0 {
		return true
	}
	t := time.NewTimer(s.cfg.ChunkDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.Context().Done():
		return false
	}
}
