// Package chat mediates one conversation between the user, the local session store and a backend.
//
// A Controller allows at most one request in flight. Sends made while a request is outstanding are logged and
// dropped, never queued. Replies are therefore applied in the order their requests were issued.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RichardoC/aura/internal/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	GenericFailureText = "Sorry, something went wrong. Please try again."
	NetworkFailureText = "Network error: could not reach the assistant. Please check your connection and try again."
	TimeoutText        = "The request timed out. Please try again."
	CancelledText      = "Request was cancelled."

	DefaultHistoryTurns = 10
)

var (
	ErrBusy                 = errors.New("a request is already in progress")
	ErrConversationNotFound = errors.New("conversation not found")

	errAborted = errors.New("request aborted")
)

// Backend is the AI collaborator. Exchange returns the reply text for one message.
type Backend interface {
	Exchange(ctx context.Context, req models.ExchangeRequest) (string, error)
	Clear(ctx context.Context, kind models.Kind) error
}

// Store is the subset of session.Store the controller needs.
type Store interface {
	CreateConversation(seed string, kind models.Kind) (*models.Conversation, error)
	GetConversation(id string) (*models.Conversation, bool)
	AppendMessage(id string, role models.Role, text string) error
	AddFile(id string, f models.FileAttachment) error
	ClearKind(kind models.Kind) (int, error)
}

// Transcript is the presentation side: whatever renders messages to the user.
type Transcript interface {
	Append(m models.Message)
	// Replay renders stored messages without persisting them again.
	Replay(msgs []models.Message)
	Reset()
	SetBusy(busy bool)
}

// statusError is implemented by backend errors that carry an HTTP status.
type statusError interface {
	HTTPStatus() int
	ServerMessage() string
}

type Status int

const (
	StatusNoop Status = iota
	StatusRejected
	StatusReplied
	StatusHTTPError
	StatusNetworkError
	StatusCancelled
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusNoop:
		return "noop"
	case StatusRejected:
		return "rejected"
	case StatusReplied:
		return "replied"
	case StatusHTTPError:
		return "http_error"
	case StatusNetworkError:
		return "network_error"
	case StatusCancelled:
		return "cancelled"
	case StatusTimeout:
		return "timeout"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome describes how one Send settled. Err carries the backend failure and any storage write failures.
type Outcome struct {
	Status         Status
	ConversationID string
	// Reply is the text appended to the transcript for this request, if any.
	Reply string
	Err   error
}

type Config struct {
	Kind models.Kind
	// HistoryTurns bounds the prior turns sent along with a message.
	HistoryTurns int
	// Timeout bounds each request. Zero means no deadline.
	Timeout time.Duration
}

type Controller struct {
	kind         models.Kind
	historyTurns int
	timeout      time.Duration

	store      Store
	backend    Backend
	transcript Transcript
	logger     *zap.Logger

	lock *semaphore.Weighted

	mu        sync.Mutex
	currentID string
	cancel    context.CancelCauseFunc
	aborted   bool
}

func New(cfg Config, store Store, backend Backend, transcript Transcript, logger *zap.Logger) (*Controller, error) {
	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("unknown chat kind %q", cfg.Kind)
	}
	if cfg.HistoryTurns < 0 {
		return nil, fmt.Errorf("history turns must not be negative, got %d", cfg.HistoryTurns)
	}
	if transcript == nil {
		transcript = NopTranscript{}
	}
	return &Controller{
		kind:         cfg.Kind,
		historyTurns: cfg.HistoryTurns,
		timeout:      cfg.Timeout,
		store:        store,
		backend:      backend,
		transcript:   transcript,
		logger:       logger.With(zap.String("kind", string(cfg.Kind))),
		lock:         semaphore.NewWeighted(1),
	}, nil
}

func (c *Controller) Kind() models.Kind { return c.kind }

func (c *Controller) CurrentConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// Busy reports whether a request is in flight.
func (c *Controller) Busy() bool {
	if c.lock.TryAcquire(1) {
		c.lock.Release(1)
		return false
	}
	return true
}

// Send appends the user's turn, issues one backend request and appends the outcome.
//
// Empty input is a no-op. A send while another is in flight returns StatusRejected without touching any state.
// Every other path releases the lock and leaves a transcript entry.
func (c *Controller) Send(ctx context.Context, text string, file *models.Attachment) Outcome {
	text = strings.TrimSpace(text)
	if file != nil && file.Name == "" && len(file.Content) == 0 {
		file = nil
	}
	if text == "" && file == nil {
		return Outcome{Status: StatusNoop}
	}

	if !c.lock.TryAcquire(1) {
		c.logger.Warn("request already in progress, ignoring duplicate send")
		return Outcome{Status: StatusRejected}
	}
	defer c.lock.Release(1)

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	c.cancel = cancel
	c.aborted = false
	convID := c.currentID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	if c.timeout > 0 {
		var cancelTimeout context.CancelFunc
		reqCtx, cancelTimeout = context.WithTimeout(reqCtx, c.timeout)
		defer cancelTimeout()
	}

	c.transcript.SetBusy(true)
	defer c.transcript.SetBusy(false)

	var storeErr error

	if convID == "" {
		seed := text
		if seed == "" {
			seed = file.Name
		}
		conv, err := c.store.CreateConversation(seed, c.kind)
		if conv == nil {
			c.logger.Error("failed to create conversation", zap.Error(err))
			return Outcome{Status: StatusNoop, Err: err}
		}
		storeErr = multierr.Append(storeErr, err)
		convID = conv.ID
		c.mu.Lock()
		c.currentID = convID
		c.mu.Unlock()
	}

	var history []models.Turn
	if conv, ok := c.store.GetConversation(convID); ok {
		history = recentTurns(conv.Messages, c.historyTurns)
	}

	if file != nil {
		meta := file.Meta(models.NowMillis())
		storeErr = multierr.Append(storeErr, c.store.AddFile(convID, meta))
		storeErr = multierr.Append(storeErr, c.record(convID, models.RoleUser, models.FileMarker(meta)))
	}
	if text != "" {
		storeErr = multierr.Append(storeErr, c.record(convID, models.RoleUser, text))
	}

	c.logger.Debug("sending message",
		zap.String("conversation_id", convID),
		zap.Bool("file", file != nil),
		zap.Int("history", len(history)))

	reply, err := c.backend.Exchange(reqCtx, models.ExchangeRequest{
		ConversationID: convID,
		Kind:           c.kind,
		Text:           text,
		File:           file,
		History:        history,
	})

	out := c.settle(convID, reply, err)
	out.Err = multierr.Append(out.Err, storeErr)
	return out
}

// settle takes the abort decision under c.mu: an Abort either lands before it, and the reply is discarded, or
// after it, and finds nothing to abort. The outcome is recorded after the lock is released.
func (c *Controller) settle(convID, reply string, err error) Outcome {
	c.mu.Lock()
	aborted := c.aborted
	c.cancel = nil
	c.aborted = false
	c.mu.Unlock()

	out := Outcome{ConversationID: convID, Err: err}
	var se statusError
	var role models.Role = models.RoleAssistant

	switch {
	case aborted:
		out.Status, out.Reply, role = StatusCancelled, CancelledText, models.RoleSystem
		if err == nil {
			c.logger.Info("discarding reply for aborted request", zap.String("conversation_id", convID))
		}
		out.Err = multierr.Append(errAborted, err)
	case err == nil:
		out.Status, out.Reply = StatusReplied, reply
	case errors.As(err, &se):
		out.Status, out.Reply = StatusHTTPError, GenericFailureText
		if msg := se.ServerMessage(); msg != "" {
			out.Reply = "Error: " + msg
		}
		c.logger.Warn("backend returned an error",
			zap.String("conversation_id", convID),
			zap.Int("status", se.HTTPStatus()),
			zap.Error(err))
	case errors.Is(err, context.DeadlineExceeded):
		out.Status, out.Reply = StatusTimeout, TimeoutText
		c.logger.Warn("request timed out", zap.String("conversation_id", convID), zap.Duration("timeout", c.timeout))
	case errors.Is(err, context.Canceled):
		out.Status, out.Reply, role = StatusCancelled, CancelledText, models.RoleSystem
		c.logger.Info("request was cancelled", zap.String("conversation_id", convID))
	default:
		out.Status, out.Reply = StatusNetworkError, NetworkFailureText
		c.logger.Error("request failed", zap.String("conversation_id", convID), zap.Error(err))
	}

	if rerr := c.record(convID, role, out.Reply); rerr != nil {
		out.Err = multierr.Append(out.Err, rerr)
	}
	return out
}

// record appends to the store and to the transcript.
func (c *Controller) record(convID string, role models.Role, text string) error {
	c.transcript.Append(models.Message{Role: role, Text: text, TS: models.NowMillis()})
	return c.store.AppendMessage(convID, role, text)
}

// Abort cancels the in-flight request. It reports false when there was nothing to abort.
func (c *Controller) Abort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil || c.aborted {
		return false
	}
	c.aborted = true
	c.cancel(errAborted)
	c.logger.Info("aborting in-flight request", zap.String("conversation_id", c.currentID))
	return true
}

// NewChat forgets the current conversation; the next Send creates a new one.
func (c *Controller) NewChat() error {
	if !c.lock.TryAcquire(1) {
		return ErrBusy
	}
	defer c.lock.Release(1)

	c.mu.Lock()
	c.currentID = ""
	c.mu.Unlock()
	c.transcript.Reset()
	return nil
}

// LoadConversation makes id current and replays its stored messages. No request is made.
func (c *Controller) LoadConversation(id string) error {
	if !c.lock.TryAcquire(1) {
		return ErrBusy
	}
	defer c.lock.Release(1)

	conv, ok := c.store.GetConversation(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if conv.Kind != c.kind {
		return fmt.Errorf("conversation %s is a %s chat, not %s", id, conv.Kind, c.kind)
	}

	c.mu.Lock()
	c.currentID = id
	c.mu.Unlock()

	c.transcript.Reset()
	c.transcript.Replay(conv.Messages)
	return nil
}

// ClearHistory removes every local conversation of this controller's kind and, when notifyBackend is set, asks
// the backend to drop its copy too. The local clear happens even if the backend call fails.
func (c *Controller) ClearHistory(ctx context.Context, notifyBackend bool) (int, error) {
	if !c.lock.TryAcquire(1) {
		return 0, ErrBusy
	}
	defer c.lock.Release(1)

	removed, err := c.store.ClearKind(c.kind)

	c.mu.Lock()
	c.currentID = ""
	c.mu.Unlock()
	c.transcript.Reset()

	if notifyBackend {
		if berr := c.backend.Clear(ctx, c.kind); berr != nil {
			c.logger.Warn("backend clear failed", zap.Error(berr))
			err = multierr.Append(err, fmt.Errorf("failed to clear backend history: %w", berr))
		}
	}
	return removed, err
}

// recentTurns returns up to n user/assistant turns from the end of msgs, oldest first. System notices and file
// markers are left out.
func recentTurns(msgs []models.Message, n int) []models.Turn {
	if n <= 0 {
		return nil
	}
	turns := make([]models.Turn, 0, n)
	for i := len(msgs) - 1; i >= 0 && len(turns) < n; i-- {
		m := msgs[i]
		if m.Role == models.RoleSystem {
			continue
		}
		if _, isFile := models.ParseFileMarker(m.Text); isFile {
			continue
		}
		turns = append(turns, models.Turn{Role: m.Role, Content: m.Text})
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}

// NopTranscript discards everything.
type NopTranscript struct{}

func (NopTranscript) Append(models.Message)   {}
func (NopTranscript) Replay([]models.Message) {}
func (NopTranscript) Reset()                  {}
func (NopTranscript) SetBusy(bool)            {}

// Transcripts fans every call out to each transcript in order.
type Transcripts []Transcript

func (ts Transcripts) Append(m models.Message) {
	for _, t := range ts {
		t.Append(m)
	}
}

func (ts Transcripts) Replay(msgs []models.Message) {
	for _, t := range ts {
		t.Replay(msgs)
	}
}

func (ts Transcripts) Reset() {
	for _, t := range ts {
		t.Reset()
	}
}

func (ts Transcripts) SetBusy(busy bool) {
	for _, t := range ts {
		t.SetBusy(busy)
	}
}
