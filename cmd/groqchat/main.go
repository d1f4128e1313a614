// Command groqchat is a terminal client for Groq's chat completion API.
//
// It sends one-shot prompts, runs interactive sessions, and keeps the
// conversation history in a local SQLite database (or memory, PostgreSQL,
// or nowhere) so a conversation can be continued later.
//
// Configuration is read from a YAML file and GROQ_* environment variables.
// See pkg/config for the full list.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()

	if err != nil {
		os.Exit(1)
	}
}
