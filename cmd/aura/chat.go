package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RichardoC/aura/internal/chat"
	"github.com/RichardoC/aura/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatConversation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Type a message and press Enter.

Commands:
  /new              start a new conversation
  /load <id>        continue a stored conversation
  /file <path> [msg] send a file, optionally with a message
  /clear            delete every conversation of this kind
  /quit             leave

Ctrl-C aborts a request in flight; when idle it exits.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	kind, err := selectedKind()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	ctrl, err := a.controller(kind, out)
	if err != nil {
		return err
	}
	if chatConversation != "" {
		if err := ctrl.LoadConversation(chatConversation); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-sigCh:
				if !ctrl.Abort() {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	lines := make(chan string)
	go readLines(ctx, cmd.InOrStdin(), lines)

	fmt.Fprintf(out, "AURA %s chat. Type /quit to leave.\n", kind)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, ctrl, a, out, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line and reports whether the session should end.
func handleLine(ctx context.Context, ctrl *chat.Controller, a *app, out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		ctrl.Send(ctx, line, nil)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/new":
		reportErr(out, ctrl.NewChat())
	case "/load":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: /load <conversation-id>")
			return false
		}
		reportErr(out, ctrl.LoadConversation(fields[1]))
	case "/file":
		if len(fields) < 2 {
			fmt.Fprintln(out, "usage: /file <path> [message]")
			return false
		}
		file, err := readAttachment(fields[1])
		if err != nil {
			reportErr(out, err)
			return false
		}
		ctrl.Send(ctx, strings.Join(fields[2:], " "), file)
	case "/clear":
		removed, err := ctrl.ClearHistory(ctx, a.cfg.Backend.Mode != config.ModeLLM)
		if err != nil {
			reportErr(out, err)
		}
		fmt.Fprintf(out, "Removed %d conversation(s).\n", removed)
	default:
		fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false
}

func reportErr(out io.Writer, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, chat.ErrBusy) {
		fmt.Fprintln(out, "Please wait for the current reply.")
		return
	}
	fmt.Fprintln(out, "error:", err)
}

// readLines feeds stdin lines to ch until EOF or ctx ends. It closes ch.
func readLines(ctx context.Context, r io.Reader, ch chan<- string) {
	defer close(ch)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case ch <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		logger.Warn("failed to read input", zap.Error(err))
	}
}

func init() {
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "Continue an existing conversation by id")
}
