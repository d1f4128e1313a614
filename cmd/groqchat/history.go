package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/rhuss/groqchat/pkg/completion"
	"github.com/rhuss/groqchat/pkg/storage"
)

var errHistoryDisabled = errors.New("history is disabled (storage.type is none)")

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
	}

	var showJSON bool
	show := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistoryShow(cmd, args[0], showJSON)
		},
	}
	show.Flags().BoolVar(&showJSON, "json", false, "Print messages in wire format")

	var clearAll bool
	clearCmd := &cobra.Command{
		Use:   "clear [conversation-id...]",
		Short: "Delete conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistoryClear(cmd, args, clearAll)
		},
	}
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "Delete every conversation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List conversations, most recent first",
			Args:  cobra.NoArgs,
			RunE:  a.runHistoryList,
		},
		show,
		clearCmd,
	)
	return cmd
}

func (a *app) requireStore(cmd *cobra.Command) (storage.HistoryStore, error) {
	store, err := a.historyStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errHistoryDisabled
	}
	return store, nil
}

func (a *app) runHistoryList(cmd *cobra.Command, _ []string) error {
	store, err := a.requireStore(cmd)
	if err != nil {
		return err
	}

	convs, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no conversations")
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "MODEL", "MESSAGES", "UPDATED")
	for _, c := range convs {
		table.AddRow(c.ID, c.Model, c.MessageCount, c.UpdatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}

func (a *app) runHistoryShow(cmd *cobra.Command, id string, asJSON bool) error {
	store, err := a.requireStore(cmd)
	if err != nil {
		return err
	}

	msgs, err := store.Load(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("conversation %s: %w", id, err)
	}

	if asJSON {
		data, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	for _, m := range msgs {
		printMessage(cmd.OutOrStdout(), m)
	}
	return nil
}

func printMessage(w io.Writer, m completion.Message) {
	switch v := m.(type) {
	case completion.SystemMessage:
		fmt.Fprintf(w, "system: %s\n", v.Content)
	case completion.UserMessage:
		fmt.Fprintf(w, "user: %s\n", v.Content)
	case completion.AssistantMessage:
		if v.Content != "" {
			fmt.Fprintf(w, "assistant: %s\n", v.Content)
		}
		for _, tc := range v.ToolCalls {
			fmt.Fprintf(w, "assistant: [tool call %s] %s(%s)\n", tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
	case completion.ToolMessage:
		fmt.Fprintf(w, "tool %s: %s\n", v.ToolCallID, v.Content)
	}
}

func (a *app) runHistoryClear(cmd *cobra.Command, ids []string, all bool) error {
	if all == (len(ids) > 0) {
		return errors.New("pass conversation ids or --all")
	}

	store, err := a.requireStore(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if all {
		convs, err := store.List(ctx)
		if err != nil {
			return err
		}
		for _, c := range convs {
			ids = append(ids, c.ID)
		}
	}

	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			return fmt.Errorf("conversation %s: %w", id, err)
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "deleted %d conversation(s)\n", len(ids))
	return nil
}
