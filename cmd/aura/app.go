package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/RichardoC/aura/internal/api"
	"github.com/RichardoC/aura/internal/chat"
	"github.com/RichardoC/aura/internal/config"
	"github.com/RichardoC/aura/internal/db"
	"github.com/RichardoC/aura/internal/events"
	"github.com/RichardoC/aura/internal/llm"
	"github.com/RichardoC/aura/internal/models"
	"github.com/RichardoC/aura/internal/session"
	"github.com/RichardoC/aura/internal/term"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const maxAttachmentBytes = 16 << 20

// app holds what every command shares: storage, the backend and the optional event bus.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	kv      db.KV
	store   *session.Store
	backend chat.Backend

	bus        *gochannel.GoChannel
	followDone chan struct{}
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	kv, err := db.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		kv:      kv,
		backend: backend,
		store: session.New(kv, logger.Named("session"), session.Options{
			MaxConversations: cfg.Storage.MaxConversations,
			MaxMessages:      cfg.Storage.MaxMessages,
			MaxRecentFiles:   cfg.Storage.MaxRecentFiles,
		}),
	}

	if cfg.Events.Enabled {
		if err := a.startEvents(); err != nil {
			_ = kv.Close()
			return nil, err
		}
	}
	return a, nil
}

func newBackend(cfg *config.Config, logger *zap.Logger) (chat.Backend, error) {
	if cfg.Backend.Mode == config.ModeLLM {
		b, err := llm.New(cfg.Backend.LLM.BaseURL, cfg.Backend.LLM.APIKey, cfg.Backend.LLM.Model, logger.Named("llm"))
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	var opts []api.Option
	if cfg.Backend.ClearPath != "" {
		opts = append(opts, api.WithClearPath(cfg.Backend.ClearPath))
	}
	defaults := api.DefaultProfiles()
	for kind, pc := range cfg.Backend.Profiles {
		p := defaults[kind]
		if pc.TextPath != "" {
			p.TextPath = pc.TextPath
		}
		if pc.UploadPath != "" {
			p.UploadPath = pc.UploadPath
		}
		if len(pc.ReplyFields) > 0 {
			p.ReplyFields = pc.ReplyFields
		}
		opts = append(opts, api.WithProfile(kind, p))
	}

	c, err := api.NewClient(cfg.Backend.BaseURL, logger.Named("api"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend client: %w", err)
	}
	return c, nil
}

// startEvents mirrors every transcript change onto the bus and logs it at debug level.
func (a *app) startEvents() error {
	a.bus = events.NewBus(a.logger.Named("events"))
	ch, err := a.bus.Subscribe(context.Background(), a.cfg.Events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to transcript events: %w", err)
	}
	a.followDone = make(chan struct{})
	go func() {
		defer close(a.followDone)
		events.Follow(ch, a.logger, func(ev events.Event) {
			a.logger.Debug("transcript event",
				zap.String("type", string(ev.Type)),
				zap.String("kind", string(ev.Kind)),
				zap.Bool("busy", ev.Busy))
		})
	}()
	return nil
}

func (a *app) controller(kind models.Kind, out io.Writer) (*chat.Controller, error) {
	printer, err := term.NewPrinter(out, term.Options{Markdown: !plain})
	if err != nil {
		return nil, err
	}
	transcripts := chat.Transcripts{printer}
	if a.bus != nil {
		transcripts = append(transcripts, events.NewPublisher(a.bus, a.cfg.Events.Topic, kind, a.logger))
	}
	return chat.New(chat.Config{
		Kind:         kind,
		HistoryTurns: a.cfg.Chat.HistoryTurns,
		Timeout:      a.cfg.GetTimeout(),
	}, a.store, a.backend, transcripts, a.logger.Named("chat"))
}

func (a *app) Close() error {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Warn("failed to close event bus", zap.Error(err))
		}
		<-a.followDone
	}
	return a.kv.Close()
}

// readAttachment loads a local file for upload. The MIME type comes from the extension, then from sniffing.
func readAttachment(path string) (*models.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("attachment %s is a directory", path)
	}
	if info.Size() > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment %s is larger than %d bytes", path, maxAttachmentBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &models.Attachment{Name: filepath.Base(path), MimeType: mimeType, Content: data}, nil
}
