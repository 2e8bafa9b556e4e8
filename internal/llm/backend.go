package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/aura/internal/api"
	"github.com/RichardoC/aura/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const defaultFilePrompt = "Please analyze and summarize this document, highlighting key concepts and important points."

var systemPrompts = map[models.Kind]string{
	models.KindMental: "You are AURA, a compassionate mental health assistant for students. " +
		"Reply as one concise paragraph with 1-2 practical tips inline and a short follow-up question. " +
		"Be warm, supportive, and practical.",
	models.KindStudy: "You are the AURA Study Assistant. Extract key concepts, definitions and formulas, " +
		"break problems into numbered steps, and end with actionable next steps. Be encouraging and concise.",
	models.KindGeneric: "You are AURA, a helpful assistant for students. Keep continuity with prior messages " +
		"and reply clearly.",
}

// Backend answers messages by calling an OpenAI-compatible model directly, without the HTTP chat backend.
type Backend struct {
	llm    llms.Model
	logger *zap.Logger
}

func New(baseURL, token, model string, logger *zap.Logger) (*Backend, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}
	return NewWithModel(llm, logger), nil
}

func NewWithModel(m llms.Model, logger *zap.Logger) *Backend {
	return &Backend{llm: m, logger: logger}
}

func (b *Backend) Exchange(ctx context.Context, req models.ExchangeRequest) (string, error) {
	start := time.Now()

	resp, err := b.llm.GenerateContent(ctx, buildMessages(req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}

	b.logger.Debug("model replied",
		zap.String("conversation_id", req.ConversationID),
		zap.Duration("elapsed", time.Since(start)))

	if len(resp.Choices) == 0 {
		return api.NoReply, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return api.NoReply, nil
	}
	return content, nil
}

// Clear is a no-op: the model keeps no server-side history.
func (b *Backend) Clear(context.Context, models.Kind) error {
	return nil
}

func buildMessages(req models.ExchangeRequest) []llms.MessageContent {
	system, ok := systemPrompts[req.Kind]
	if !ok {
		system = systemPrompts[models.KindGeneric]
	}
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)}

	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}

	var parts []llms.ContentPart
	text := req.Text
	if f := req.File; f != nil {
		if isText(f.MimeType) {
			parts = append(parts, llms.TextContent{Text: fmt.Sprintf("Attached file %s:\n%s", f.Name, f.Content)})
		} else {
			parts = append(parts, llms.BinaryPart(f.MimeType, f.Content))
		}
		if text == "" {
			text = defaultFilePrompt
		}
	}
	parts = append(parts, llms.TextContent{Text: text})

	return append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
}

func isText(mime string) bool {
	return strings.HasPrefix(mime, "text/") || mime == "application/json" || mime == "application/xml"
}
