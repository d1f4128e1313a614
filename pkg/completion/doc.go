// Package completion implements a client for a hosted Chat Completions
// endpoint (Groq's OpenAI-compatible API by default). It handles request
// construction, buffered and streamed dispatch, SSE chunk consumption and
// error normalization.
//
// A Client keeps the conversation history. Each call snapshots that history
// into an immutable Request built with a Builder:
//
//	c := completion.New(apiKey)
//	c.AddMessage(completion.UserMessage{Content: "Explain fast language models"})
//	req := completion.NewBuilder("llama-3.1-8b-instant").WithStream(true).Build()
//	out, err := c.Create(ctx, req)
//
// Every failure is returned as an *Error whose Kind tells validation,
// transport, API and decode failures apart.
package completion
