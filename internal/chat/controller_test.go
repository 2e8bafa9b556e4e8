package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RichardoC/aura/internal/api"
	"github.com/RichardoC/aura/internal/db"
	"github.com/RichardoC/aura/internal/models"
	"github.com/RichardoC/aura/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend answers from fn. calls counts Exchange invocations.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	reqs    []models.ExchangeRequest
	cleared []models.Kind
	fn      func(ctx context.Context, req models.ExchangeRequest) (string, error)
}

func (b *fakeBackend) Exchange(ctx context.Context, req models.ExchangeRequest) (string, error) {
	b.mu.Lock()
	b.calls++
	b.reqs = append(b.reqs, req)
	fn := b.fn
	b.mu.Unlock()
	if fn == nil {
		return "ok", nil
	}
	return fn(ctx, req)
}

func (b *fakeBackend) Clear(_ context.Context, kind models.Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared = append(b.cleared, kind)
	return nil
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *fakeBackend) LastRequest() models.ExchangeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reqs[len(b.reqs)-1]
}

type recordingTranscript struct {
	mu       sync.Mutex
	appended []models.Message
	replayed []models.Message
	resets   int
	busy     []bool
}

func (r *recordingTranscript) Append(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, m)
}

func (r *recordingTranscript) Replay(msgs []models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replayed = append(r.replayed, msgs...)
}

func (r *recordingTranscript) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.appended = nil
	r.replayed = nil
}

func (r *recordingTranscript) SetBusy(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, b)
}

func (r *recordingTranscript) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.appended {
		out = append(out, m.Text)
	}
	return out
}

type harness struct {
	ctrl       *Controller
	store      *session.Store
	backend    *fakeBackend
	transcript *recordingTranscript
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.Kind == "" {
		cfg.Kind = models.KindMental
	}
	if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	h := &harness{
		store:      session.New(db.NewMemory(), zaptest.NewLogger(t), session.DefaultOptions()),
		backend:    &fakeBackend{},
		transcript: &recordingTranscript{},
	}
	ctrl, err := New(cfg, h.store, h.backend, h.transcript, zaptest.NewLogger(t))
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) messages(t *testing.T) []models.Message {
	t.Helper()
	conv, ok := h.store.GetConversation(h.ctrl.CurrentConversationID())
	require.True(t, ok)
	return conv.Messages
}

func roles(msgs []models.Message) []models.Role {
	out := make([]models.Role, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

// blockUntilReleased makes Exchange signal entered and wait for release or ctx.
func blockUntilReleased(entered chan<- struct{}, release <-chan struct{}, reply string) func(context.Context, models.ExchangeRequest) (string, error) {
	return func(ctx context.Context, _ models.ExchangeRequest) (string, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return reply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func TestSendOverHTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/mental", r.URL.Path)
		_, _ = w.Write([]byte(`{"ai_response":"Hi there"}`))
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, zaptest.NewLogger(t),
		api.WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)

	store := session.New(db.NewMemory(), zaptest.NewLogger(t), session.DefaultOptions())
	tr := &recordingTranscript{}
	ctrl, err := New(Config{Kind: models.KindMental, HistoryTurns: DefaultHistoryTurns}, store, client, tr, zaptest.NewLogger(t))
	require.NoError(t, err)

	out := ctrl.Send(context.Background(), "Hello", nil)
	require.NoError(t, out.Err)
	assert.Equal(t, StatusReplied, out.Status)
	assert.Equal(t, "Hi there", out.Reply)

	conv, ok := store.GetConversation(out.ConversationID)
	require.True(t, ok)
	assert.Equal(t, "Hello", conv.Title)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, roles(conv.Messages))
	assert.Equal(t, "Hi there", conv.Messages[1].Text)
	assert.Equal(t, []string{"Hello", "Hi there"}, tr.texts())
	assert.Equal(t, []bool{true, false}, tr.busy)
	assert.False(t, ctrl.Busy())
}

func TestNonJSONReplyIsAFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>Sign in to Wi-Fi</body></html>`))
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, zaptest.NewLogger(t),
		api.WithHTTPClient(&http.Client{Transport: &http.Transport{DisableKeepAlives: true}}))
	require.NoError(t, err)

	store := session.New(db.NewMemory(), zaptest.NewLogger(t), session.DefaultOptions())
	ctrl, err := New(Config{Kind: models.KindMental, HistoryTurns: DefaultHistoryTurns}, store, client, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	out := ctrl.Send(context.Background(), "Hello", nil)
	assert.Equal(t, StatusHTTPError, out.Status)
	assert.Equal(t, GenericFailureText, out.Reply)
	assert.ErrorIs(t, out.Err, api.ErrMalformedReply)

	conv, ok := store.GetConversation(out.ConversationID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, GenericFailureText, conv.Messages[1].Text)
	assert.NotContains(t, conv.Messages[1].Text, "Wi-Fi")
}

func TestSendWhileBusyIsDropped(t *testing.T) {
	h := newHarness(t, Config{})
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h.backend.fn = blockUntilReleased(entered, release, "first reply")

	done := make(chan Outcome, 1)
	go func() { done <- h.ctrl.Send(context.Background(), "first", nil) }()
	<-entered

	assert.True(t, h.ctrl.Busy())
	second := h.ctrl.Send(context.Background(), "second", nil)
	assert.Equal(t, StatusRejected, second.Status)

	close(release)
	first := <-done
	assert.Equal(t, StatusReplied, first.Status)
	assert.Equal(t, 1, h.backend.Calls())

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "first reply", msgs[1].Text)
}

func TestEmptySendIsNoop(t *testing.T) {
	h := newHarness(t, Config{})
	out := h.ctrl.Send(context.Background(), "   \n\t", nil)
	assert.Equal(t, StatusNoop, out.Status)
	assert.Empty(t, h.store.ListConversations())
	assert.Zero(t, h.backend.Calls())
	assert.Empty(t, h.transcript.busy)
	assert.Empty(t, h.ctrl.CurrentConversationID())
}

func TestHTTPErrorAppendsErrorTurn(t *testing.T) {
	h := newHarness(t, Config{})
	h.backend.fn = func(context.Context, models.ExchangeRequest) (string, error) {
		return "", &api.HTTPError{StatusCode: 500, Message: "AI service error. Please try again."}
	}

	out := h.ctrl.Send(context.Background(), "Hello", nil)
	assert.Equal(t, StatusHTTPError, out.Status)
	assert.Equal(t, "Error: AI service error. Please try again.", out.Reply)
	var herr *api.HTTPError
	assert.ErrorAs(t, out.Err, &herr)

	msgs := h.messages(t)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant}, roles(msgs))
	assert.Equal(t, out.Reply, msgs[1].Text)
	assert.False(t, h.ctrl.Busy())

	h.backend.fn = func(context.Context, models.ExchangeRequest) (string, error) {
		return "", &api.HTTPError{StatusCode: 502}
	}
	out = h.ctrl.Send(context.Background(), "again", nil)
	assert.Equal(t, StatusHTTPError, out.Status)
	assert.Equal(t, GenericFailureText, out.Reply)
}

func TestNetworkError(t *testing.T) {
	h := newHarness(t, Config{})
	h.backend.fn = func(context.Context, models.ExchangeRequest) (string, error) {
		return "", fmt.Errorf("%w: dial tcp: connection refused", api.ErrNetwork)
	}

	out := h.ctrl.Send(context.Background(), "Hello", nil)
	assert.Equal(t, StatusNetworkError, out.Status)
	assert.Equal(t, NetworkFailureText, out.Reply)
	assert.NotEqual(t, GenericFailureText, out.Reply)
	assert.ErrorIs(t, out.Err, api.ErrNetwork)
	assert.Len(t, h.messages(t), 2)
}

func TestTimeout(t *testing.T) {
	h := newHarness(t, Config{Timeout: 20 * time.Millisecond})
	h.backend.fn = func(ctx context.Context, _ models.ExchangeRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	out := h.ctrl.Send(context.Background(), "Hello", nil)
	assert.Equal(t, StatusTimeout, out.Status)
	assert.Equal(t, TimeoutText, out.Reply)
	assert.Equal(t, models.RoleAssistant, h.messages(t)[1].Role)
	assert.False(t, h.ctrl.Busy())
}

func TestAbortMidFlight(t *testing.T) {
	h := newHarness(t, Config{})
	entered := make(chan struct{}, 1)
	h.backend.fn = blockUntilReleased(entered, make(chan struct{}), "never")

	assert.False(t, h.ctrl.Abort(), "nothing in flight")

	done := make(chan Outcome, 1)
	go func() { done <- h.ctrl.Send(context.Background(), "Hello", nil) }()
	<-entered

	assert.True(t, h.ctrl.Abort())
	assert.False(t, h.ctrl.Abort(), "second abort is a no-op")

	out := <-done
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Equal(t, CancelledText, out.Reply)

	msgs := h.messages(t)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleSystem}, roles(msgs))
	assert.False(t, h.ctrl.Busy())
	assert.False(t, h.ctrl.Abort())

	h.backend.fn = nil
	next := h.ctrl.Send(context.Background(), "still here?", nil)
	assert.Equal(t, StatusReplied, next.Status)
}

func TestAbortDiscardsLateReply(t *testing.T) {
	h := newHarness(t, Config{})
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	// Ignores ctx and answers anyway once released.
	h.backend.fn = func(context.Context, models.ExchangeRequest) (string, error) {
		entered <- struct{}{}
		<-release
		return "late reply", nil
	}

	done := make(chan Outcome, 1)
	go func() { done <- h.ctrl.Send(context.Background(), "Hello", nil) }()
	<-entered
	require.True(t, h.ctrl.Abort())
	close(release)

	out := <-done
	assert.Equal(t, StatusCancelled, out.Status)
	for _, m := range h.messages(t) {
		assert.NotEqual(t, "late reply", m.Text)
		assert.NotEqual(t, models.RoleAssistant, m.Role)
	}
	assert.NotContains(t, h.transcript.texts(), "late reply")
}

// reentrantTranscript calls back into the controller the way an interactive front end might.
type reentrantTranscript struct {
	*recordingTranscript
	ctrl        *Controller
	abortOnBusy bool

	mu      sync.Mutex
	aborted []bool
	seenIDs []string
}

func (r *reentrantTranscript) SetBusy(b bool) {
	r.recordingTranscript.SetBusy(b)
	if b && r.abortOnBusy {
		ok := r.ctrl.Abort()
		r.mu.Lock()
		r.aborted = append(r.aborted, ok)
		r.mu.Unlock()
	}
}

func (r *reentrantTranscript) Append(m models.Message) {
	r.recordingTranscript.Append(m)
	id := r.ctrl.CurrentConversationID()
	r.mu.Lock()
	r.seenIDs = append(r.seenIDs, id)
	r.mu.Unlock()
}

func newReentrant(t *testing.T, abortOnBusy bool) (*reentrantTranscript, *session.Store, *fakeBackend) {
	t.Helper()
	store := session.New(db.NewMemory(), zaptest.NewLogger(t), session.DefaultOptions())
	backend := &fakeBackend{}
	tr := &reentrantTranscript{recordingTranscript: &recordingTranscript{}, abortOnBusy: abortOnBusy}
	ctrl, err := New(Config{Kind: models.KindMental, HistoryTurns: DefaultHistoryTurns}, store, backend, tr, zaptest.NewLogger(t))
	require.NoError(t, err)
	tr.ctrl = ctrl
	return tr, store, backend
}

func TestAbortRightAfterAcquireIsHonoured(t *testing.T) {
	tr, store, _ := newReentrant(t, true)

	out := tr.ctrl.Send(context.Background(), "Hello", nil)
	assert.Equal(t, []bool{true}, tr.aborted)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.ErrorIs(t, out.Err, errAborted)

	conv, ok := store.GetConversation(out.ConversationID)
	require.True(t, ok)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleSystem}, roles(conv.Messages))
	assert.False(t, tr.ctrl.Busy())
}

func TestTranscriptMayCallBackIntoController(t *testing.T) {
	tr, _, _ := newReentrant(t, false)

	done := make(chan Outcome, 1)
	go func() { done <- tr.ctrl.Send(context.Background(), "Hello", nil) }()

	select {
	case out := <-done:
		assert.Equal(t, StatusReplied, out.Status)
		assert.Equal(t, []string{out.ConversationID, out.ConversationID}, tr.seenIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return")
	}
}

func TestCallerCancellation(t *testing.T) {
	h := newHarness(t, Config{})
	entered := make(chan struct{}, 1)
	h.backend.fn = blockUntilReleased(entered, make(chan struct{}), "never")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- h.ctrl.Send(ctx, "Hello", nil) }()
	<-entered
	cancel()

	out := <-done
	assert.Equal(t, StatusCancelled, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestFileOnlySend(t *testing.T) {
	h := newHarness(t, Config{Kind: models.KindStudy})
	file := &models.Attachment{Name: "notes.pdf", MimeType: "application/pdf", Content: []byte("%PDF-1.4")}

	out := h.ctrl.Send(context.Background(), "", file)
	require.NoError(t, out.Err)
	assert.Equal(t, StatusReplied, out.Status)

	conv, ok := h.store.GetConversation(out.ConversationID)
	require.True(t, ok)
	assert.Equal(t, "notes.pdf", conv.Title)
	require.Len(t, conv.Files, 1)
	assert.Equal(t, int64(8), conv.Files[0].Size)

	meta, isFile := models.ParseFileMarker(conv.Messages[0].Text)
	require.True(t, isFile)
	assert.Equal(t, "notes.pdf", meta.Name)
	assert.Equal(t, "application/pdf", meta.MimeType)

	req := h.backend.LastRequest()
	assert.Same(t, file, req.File)
	assert.Empty(t, req.Text)
	require.Len(t, h.store.RecentFiles(), 1)
}

func TestFileWithTextAppendsBothTurns(t *testing.T) {
	h := newHarness(t, Config{Kind: models.KindStudy})
	file := &models.Attachment{Name: "a.txt", MimeType: "text/plain", Content: []byte("x")}

	out := h.ctrl.Send(context.Background(), "summarise", file)
	require.Equal(t, StatusReplied, out.Status)

	msgs := h.messages(t)
	require.Len(t, msgs, 3)
	_, isFile := models.ParseFileMarker(msgs[0].Text)
	assert.True(t, isFile)
	assert.Equal(t, "summarise", msgs[1].Text)
	assert.Equal(t, models.RoleAssistant, msgs[2].Role)
}

func TestHistoryWindow(t *testing.T) {
	h := newHarness(t, Config{HistoryTurns: 3})
	var n atomic.Int32
	h.backend.fn = func(context.Context, models.ExchangeRequest) (string, error) {
		return fmt.Sprintf("reply %d", n.Add(1)), nil
	}

	first := h.ctrl.Send(context.Background(), "one", nil)
	require.Equal(t, StatusReplied, first.Status)
	assert.Empty(t, h.backend.LastRequest().History)

	h.ctrl.Send(context.Background(), "two", nil)
	h.ctrl.Send(context.Background(), "three", nil)

	req := h.backend.LastRequest()
	assert.Equal(t, "three", req.Text)
	assert.Equal(t, []models.Turn{
		{Role: models.RoleAssistant, Content: "reply 1"},
		{Role: models.RoleUser, Content: "two"},
		{Role: models.RoleAssistant, Content: "reply 2"},
	}, req.History)
	assert.Equal(t, first.ConversationID, req.ConversationID)
}

func TestRecentTurnsSkipsMarkersAndNotices(t *testing.T) {
	marker := models.FileMarker(models.FileAttachment{Name: "f.txt", Size: 1, MimeType: "text/plain"})
	msgs := []models.Message{
		{Role: models.RoleUser, Text: "a"},
		{Role: models.RoleUser, Text: marker},
		{Role: models.RoleSystem, Text: CancelledText},
		{Role: models.RoleAssistant, Text: "b"},
	}
	assert.Equal(t, []models.Turn{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "b"},
	}, recentTurns(msgs, 10))
	assert.Nil(t, recentTurns(msgs, 0))
}

func TestLoadConversationReplaysWithoutRequest(t *testing.T) {
	h := newHarness(t, Config{})
	out := h.ctrl.Send(context.Background(), "Hello", nil)
	require.Equal(t, StatusReplied, out.Status)
	require.NoError(t, h.ctrl.NewChat())
	assert.Empty(t, h.ctrl.CurrentConversationID())

	before, _ := h.store.GetConversation(out.ConversationID)
	calls := h.backend.Calls()

	require.NoError(t, h.ctrl.LoadConversation(out.ConversationID))
	assert.Equal(t, out.ConversationID, h.ctrl.CurrentConversationID())
	assert.Equal(t, calls, h.backend.Calls())
	assert.Equal(t, before.Messages, h.transcript.replayed)

	after, _ := h.store.GetConversation(out.ConversationID)
	assert.Equal(t, before.Messages, after.Messages)

	err := h.ctrl.LoadConversation("chat_missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestLoadConversationRejectsOtherKind(t *testing.T) {
	h := newHarness(t, Config{})
	conv, err := h.store.CreateConversation("algebra", models.KindStudy)
	require.NoError(t, err)
	assert.Error(t, h.ctrl.LoadConversation(conv.ID))
}

func TestStateChangesRejectedWhileBusy(t *testing.T) {
	h := newHarness(t, Config{})
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	h.backend.fn = blockUntilReleased(entered, release, "ok")

	done := make(chan Outcome, 1)
	go func() { done <- h.ctrl.Send(context.Background(), "Hello", nil) }()
	<-entered

	assert.ErrorIs(t, h.ctrl.NewChat(), ErrBusy)
	assert.ErrorIs(t, h.ctrl.LoadConversation("anything"), ErrBusy)
	_, err := h.ctrl.ClearHistory(context.Background(), false)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-done
}

func TestClearHistory(t *testing.T) {
	h := newHarness(t, Config{})
	h.ctrl.Send(context.Background(), "Hello", nil)
	_, err := h.store.CreateConversation("study stuff", models.KindStudy)
	require.NoError(t, err)

	removed, err := h.ctrl.ClearHistory(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, h.ctrl.CurrentConversationID())
	assert.Len(t, h.store.ListConversations(), 1)
	assert.Equal(t, []models.Kind{models.KindMental}, h.backend.cleared)

	out := h.ctrl.Send(context.Background(), "fresh start", nil)
	conv, ok := h.store.GetConversation(out.ConversationID)
	require.True(t, ok)
	assert.Equal(t, "fresh start", conv.Title)
}

func TestControllersShareStoreIndependently(t *testing.T) {
	store := session.New(db.NewMemory(), zaptest.NewLogger(t), session.DefaultOptions())
	mental, err := New(Config{Kind: models.KindMental}, store, &fakeBackend{}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	study, err := New(Config{Kind: models.KindStudy}, store, &fakeBackend{}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var a, b Outcome
	wg.Add(2)
	go func() { defer wg.Done(); a = mental.Send(context.Background(), "stressed", nil) }()
	go func() { defer wg.Done(); b = study.Send(context.Background(), "integrals", nil) }()
	wg.Wait()

	assert.Equal(t, StatusReplied, a.Status)
	assert.Equal(t, StatusReplied, b.Status)
	assert.NotEqual(t, a.ConversationID, b.ConversationID)
	assert.Len(t, store.ListConversations(models.KindMental), 1)
	assert.Len(t, store.ListConversations(models.KindStudy), 1)
}

type failingStoreKV struct{ *db.Memory }

func (failingStoreKV) Put(string, []byte) error { return errors.New("disk full") }

func TestStoreFailureStillCompletesExchange(t *testing.T) {
	store := session.New(failingStoreKV{db.NewMemory()}, zaptest.NewLogger(t), session.DefaultOptions())
	ctrl, err := New(Config{Kind: models.KindGeneric}, store, &fakeBackend{}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	out := ctrl.Send(context.Background(), "Hello", nil)
	assert.Equal(t, StatusReplied, out.Status)
	assert.ErrorContains(t, out.Err, "disk full")
	conv, ok := store.GetConversation(out.ConversationID)
	require.True(t, ok)
	assert.Len(t, conv.Messages, 2)
}

func TestNewValidatesConfig(t *testing.T) {
	store := session.New(db.NewMemory(), zaptest.NewLogger(t), session.DefaultOptions())
	_, err := New(Config{Kind: "poetry"}, store, &fakeBackend{}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = New(Config{Kind: models.KindMental, HistoryTurns: -1}, store, &fakeBackend{}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestTranscriptsFanOut(t *testing.T) {
	a, b := &recordingTranscript{}, &recordingTranscript{}
	ts := Transcripts{a, b, NopTranscript{}}
	ts.SetBusy(true)
	ts.Append(models.Message{Role: models.RoleUser, Text: "hi"})
	ts.Replay([]models.Message{{Role: models.RoleAssistant, Text: "hello"}})

	for _, r := range []*recordingTranscript{a, b} {
		assert.Equal(t, []string{"hi"}, r.texts())
		assert.Len(t, r.replayed, 1)
		assert.Equal(t, []bool{true}, r.busy)
	}
	ts.Reset()
	assert.Equal(t, 1, a.resets)
	assert.Empty(t, b.texts())
}
