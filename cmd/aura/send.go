package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RichardoC/aura/internal/chat"
	"github.com/RichardoC/aura/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sendFile         string
	sendConversation string
)

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send one message and print the reply",
	Long: `Send one message, optionally with a file, and print the reply.

Without --conversation a new conversation is started. Ctrl-C aborts the request.`,
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	kind, err := selectedKind()
	if err != nil {
		return err
	}

	var file *models.Attachment
	if sendFile != "" {
		if file, err = readAttachment(sendFile); err != nil {
			return err
		}
	}

	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" && file == nil {
		return fmt.Errorf("nothing to send: pass a message or --file")
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
	if sendConversation != "" {
		if err := ctrl.LoadConversation(sendConversation); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ctrl.Abort()
	}()

	out := ctrl.Send(context.WithoutCancel(ctx), text, file)
	return outcomeErr(out)
}

// outcomeErr turns a failed outcome into a command error so the exit status reflects it.
func outcomeErr(out chat.Outcome) error {
	if out.Err != nil {
		logger.Debug("send finished with errors",
			zap.String("status", out.Status.String()),
			zap.String("conversation_id", out.ConversationID),
			zap.Error(out.Err))
	}
	switch out.Status {
	case chat.StatusReplied:
		return nil
	case chat.StatusNoop:
		return fmt.Errorf("nothing was sent")
	default:
		return fmt.Errorf("request %s", out.Status)
	}
}

func init() {
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "Attach a file")
	sendCmd.Flags().StringVar(&sendConversation, "conversation", "", "Continue an existing conversation by id")
}
