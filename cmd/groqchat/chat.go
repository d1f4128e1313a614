package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/storage"
)

// isTerminal reports whether r is an interactive terminal.
var isTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type chatOptions struct {
	model        string
	system       string
	conversation string
	stream       bool
	jsonMode     bool
	temperature  float64
	maxTokens    int
	stop         []string
}

func newChatCmd(a *app) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt or start an interactive session",
		Long: `Send a prompt and print the reply.

Without a prompt argument the prompt is read from standard input. When
standard input is a terminal an interactive session starts instead; type
/new to start a fresh conversation and /exit to quit.

Every exchange is saved to the history store. Pass --conversation with an
id printed by an earlier run to continue that conversation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "Model to use (default: client.default_model)")
	f.StringVarP(&opts.system, "system", "s", "", "System prompt for a new conversation")
	f.StringVarP(&opts.conversation, "conversation", "c", "", "Conversation id to continue or create")
	f.BoolVar(&opts.stream, "stream", false, "Stream the completion")
	f.BoolVar(&opts.jsonMode, "json-mode", false, "Ask the model for a JSON object")
	f.Float64Var(&opts.temperature, "temperature", 1, "Sampling temperature")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	f.StringSliceVar(&opts.stop, "stop", nil, "Stop sequence (repeatable)")

	return cmd
}

// builder turns the flags into a request template. Only flags the user set
// are applied; everything else keeps the request defaults.
func (o chatOptions) builder(cmd *cobra.Command, model string) completion.Builder {
	b := completion.NewBuilder(model).WithStream(o.stream)

	changed := cmd.Flags().Changed
	if changed("temperature") {
		b = b.WithTemperature(o.temperature)
	}
	if changed("max-tokens") {
		b = b.WithMaxTokens(o.maxTokens)
	}
	switch len(o.stop) {
	case 0:
	case 1:
		b = b.WithStop(o.stop[0])
	default:
		b = b.WithStops(o.stop)
	}
	if o.jsonMode {
		b = b.WithResponseFormat(completion.ResponseFormat{Type: completion.ResponseFormatJSONObject})
	}
	return b
}

func (a *app) runChat(cmd *cobra.Command, opts chatOptions, args []string) error {
	ctx := cmd.Context()

	if a.cfg.Client.APIKey == "" {
		return errors.New("no API key configured: set GROQ_API_KEY or client.api_key")
	}

	model := opts.model
	if model == "" {
		model = a.cfg.Client.DefaultModel
	}

	store, err := a.historyStore(ctx)
	if err != nil {
		return err
	}

	client := completion.NewWithConfig(completion.Config{
		APIKey:   a.cfg.Client.APIKey,
		Endpoint: a.cfg.Client.Endpoint,
		Timeout:  a.cfg.Client.Timeout,
	})
	defer client.Close()

	s := &session{
		client:  client,
		store:   store,
		builder: opts.builder(cmd, model),
		model:   model,
		system:  opts.system,
		out:     cmd.OutOrStdout(),
	}
	if err := s.resume(ctx, opts.conversation); err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		if isTerminal(cmd.InOrStdin()) {
			return s.repl(ctx, cmd.InOrStdin(), cmd.ErrOrStderr())
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
		if prompt == "" {
			return errors.New("no prompt given")
		}
	}

	if err := s.turn(ctx, prompt); err != nil {
		return err
	}
	if store != nil && opts.conversation == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", s.id)
	}
	return nil
}

// session is one conversation with the model. The history is kept here and
// loaded into the client for each turn, so a failed turn leaves no trace.
type session struct {
	client  *completion.Client
	store   storage.HistoryStore
	builder completion.Builder
	model   string
	system  string
	out     io.Writer

	id      string
	history []completion.Message
	// unsaved holds messages added to history but not yet persisted.
	unsaved []completion.Message
}

// resume loads conversation id from the store. An empty id starts a new
// conversation; an unknown id starts a new conversation under that id.
func (s *session) resume(ctx context.Context, id string) error {
	if id == "" {
		s.start(uuid.NewString())
		return nil
	}

	s.start(id)
	if s.store == nil {
		return nil
	}

	msgs, err := s.store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}
	if len(msgs) > 0 {
		s.history = msgs
		s.unsaved = nil
	}
	return nil
}

func (s *session) start(id string) {
	s.id = id
	s.history = nil
	s.unsaved = nil
	if s.system != "" {
		sys := completion.SystemMessage{Content: s.system}
		s.history = []completion.Message{sys}
		s.unsaved = []completion.Message{sys}
	}
}

// turn sends prompt with the conversation so far and prints the reply.
func (s *session) turn(ctx context.Context, prompt string) error {
	user := completion.UserMessage{Content: prompt}

	s.client.ClearMessages()
	s.client.AddMessages(s.history...)
	s.client.AddMessage(user)

	resp, err := s.send(ctx)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return errors.New("completion returned no choices")
	}

	reply := resp.Choices[0].Message.AsMessage()
	s.print(reply)

	s.history = append(s.history, user, reply)
	s.unsaved = append(s.unsaved, user, reply)

	if s.store != nil {
		if err := s.store.Append(ctx, s.id, s.model, s.unsaved...); err != nil {
			return fmt.Errorf("saving conversation %s: %w", s.id, err)
		}
	}
	s.unsaved = nil
	return nil
}

func (s *session) send(ctx context.Context) (*completion.Response, error) {
	c, err := s.client.Create(ctx, s.builder.Build())
	if err != nil {
		return nil, err
	}
	if c.IsStream() {
		return completion.Accumulate(c.Chunks), nil
	}
	return c.Response, nil
}

func (s *session) print(m completion.AssistantMessage) {
	if m.Content != "" {
		fmt.Fprintln(s.out, m.Content)
	}
	for _, tc := range m.ToolCalls {
		fmt.Fprintf(s.out, "[tool call %s] %s(%s)\n", tc.ID, tc.Function.Name, tc.Function.Arguments)
	}
}

// repl reads prompts line by line until EOF or /exit. Failed turns are
// reported and the session continues.
func (s *session) repl(ctx context.Context, in io.Reader, status io.Writer) error {
	fmt.Fprintf(status, "conversation %s with %s. /new starts over, /exit quits.\n", s.id, s.model)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(status, "> ")
		if !sc.Scan() {
			fmt.Fprintln(status)
			return sc.Err()
		}

		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			s.start(uuid.NewString())
			fmt.Fprintf(status, "conversation %s\n", s.id)
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(status, "error: %v\n", err)
		}
	}
}
