package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/aura/internal/config"
	"github.com/RichardoC/aura/internal/models"
	"github.com/RichardoC/aura/internal/term"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyAll    bool
	historyRemote bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and manage stored conversations",
	RunE:  runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a stored conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete one conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every conversation of the selected kind",
	RunE:  runHistoryClear,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var kinds []models.Kind
	if !historyAll {
		kind, err := selectedKind()
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	out := cmd.OutOrStdout()
	convs := a.store.ListConversations(kinds...)
	if len(convs) == 0 {
		fmt.Fprintln(out, "No saved conversations.")
		return nil
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, c := range convs {
		fmt.Fprintf(out, "%s  [%s]  %s\n", c.ID, c.Kind, c.Title)
		fmt.Fprintf(out, "    %d message(s), last active %s\n", len(c.Messages), humanize.Time(lastActive(c)))
	}
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "Total: %d conversation(s)\n", len(convs))
	return nil
}

// lastActive is the newest message time, or the creation time for an empty conversation.
func lastActive(c models.Conversation) time.Time {
	if ts := c.LastTS(); ts != 0 {
		return time.UnixMilli(ts)
	}
	return time.UnixMilli(c.CreatedAt)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, ok := a.store.GetConversation(args[0])
	if !ok {
		return fmt.Errorf("conversation %q not found; use 'aura history list' to see stored conversations", args[0])
	}

	printer, err := term.NewPrinter(cmd.OutOrStdout(), term.Options{Markdown: !plain})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [%s], started %s\n",
		conv.Title, conv.Kind, humanize.Time(time.UnixMilli(conv.CreatedAt)))
	printer.Replay(conv.Messages)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.store.DeleteConversation(args[0])
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("conversation %q not found", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	kind, err := selectedKind()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := a.controller(kind, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	removed, err := ctrl.ClearHistory(cmd.Context(), historyRemote && cfg.Backend.Mode == config.ModeHTTP)
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s conversation(s).\n", removed, kind)
	return err
}

func init() {
	historyListCmd.Flags().BoolVarP(&historyAll, "all", "a", false, "List every kind")
	historyCmd.Flags().BoolVarP(&historyAll, "all", "a", false, "List every kind")
	historyClearCmd.Flags().BoolVar(&historyRemote, "remote", false, "Also clear the backend's server-side history")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
}
