package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/packages/ssestream"

	"github.com/rhuss/groqchat/pkg/debug"
)

// doneSentinel terminates a stream. It is never decoded as a chunk.
const doneSentinel = "[DONE]"

// EventKind is the type of an event delivered by an EventSource.
type EventKind int

const (
	// EventOpen signals that the connection is established.
	EventOpen EventKind = iota
	// EventMessage carries the data of one SSE event.
	EventMessage
	// EventError signals a transport-level failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one step of an event stream.
type Event struct {
	Kind EventKind

	// Type is the SSE event name; empty for unnamed events.
	Type string

	// Data is the event payload for EventMessage.
	Data []byte

	// Err is the failure for EventError.
	Err error
}

// EventSource delivers stream events one at a time. Next returns false
// when the source is exhausted. Close releases the connection and must be
// safe to call more than once.
type EventSource interface {
	Next(ctx context.Context) (Event, bool)
	Close() error
}

type streamState int

const (
	stateConnecting streamState = iota
	stateActive
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateActive:
		return "active"
	default:
		return "closed"
	}
}

// Consume drives src to completion and returns the decoded chunks in
// arrival order. The stream must end with the [DONE] sentinel; anything
// else is an error. On error the chunks received so far are discarded.
// src is closed on every return path.
func Consume(ctx context.Context, src EventSource) ([]StreamChunk, error) {
	return consume(ctx, src, nil)
}

// consume is Consume with an optional callback invoked for each decoded
// chunk, in order, before it is appended.
func consume(ctx context.Context, src EventSource, onChunk func(*StreamChunk)) ([]StreamChunk, error) {
	state := stateConnecting
	chunks := make([]StreamChunk, 0)

	defer func() {
		if cerr := src.Close(); cerr != nil {
			debug.Log("streaming", "closing event source", "error", cerr.Error())
		}
	}()

	for {
		if cerr := ctx.Err(); cerr != nil {
			return nil, newTransportError("stream cancelled", cerr)
		}

		ev, ok := src.Next(ctx)
		if !ok {
			return nil, newTransportError("stream terminated abnormally", ErrStreamTruncated)
		}

		switch ev.Kind {
		case EventOpen:
			if state == stateConnecting {
				debug.Log("streaming", "connection open")
			}
			state = stateActive

		case EventError:
			debug.Log("streaming", "stream error", "state", state.String(), "discarded_chunks", len(chunks))
			if e, isErr := AsError(ev.Err); isErr {
				return nil, e
			}
			return nil, newTransportError("stream read error", ev.Err)

		case EventMessage:
			if state != stateActive {
				return nil, newTransportError("message event before connection open", nil)
			}

			data := bytes.TrimSpace(ev.Data)
			if len(data) == 0 {
				continue
			}
			if string(data) == doneSentinel {
				debug.Log("streaming", "stream done", "chunks", len(chunks))
				return chunks, nil
			}
			if ev.Type == "error" {
				return nil, decodeErrorBody(0, data)
			}

			var chunk StreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				slog.Warn("undecodable stream chunk", "data", debug.Truncate(string(data), 200))
				return nil, newDecodeError(0, "undecodable stream chunk", err)
			}
			if onChunk != nil {
				onChunk(&chunk)
			}
			chunks = append(chunks, chunk)

		default:
			return nil, newTransportError("unknown stream event", nil)
		}
	}
}

// httpEventSource adapts an event-stream HTTP response to EventSource,
// using the ssestream decoder for SSE framing.
type httpEventSource struct {
	decoder ssestream.Decoder
	opened  bool
	closed  bool
}

func newHTTPEventSource(resp *http.Response) *httpEventSource {
	return &httpEventSource{decoder: ssestream.NewDecoder(resp)}
}

func (s *httpEventSource) Next(ctx context.Context) (Event, bool) {
	if s.closed {
		return Event{}, false
	}
	if !s.opened {
		s.opened = true
		return Event{Kind: EventOpen}, true
	}
	if s.decoder.Next() {
		ev := s.decoder.Event()
		return Event{Kind: EventMessage, Type: ev.Type, Data: ev.Data}, true
	}
	if err := s.decoder.Err(); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			err = errors.Join(cerr, err)
		}
		return Event{Kind: EventError, Err: err}, true
	}
	return Event{}, false
}

func (s *httpEventSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.decoder.Close()
}
