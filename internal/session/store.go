// Package session persists chat conversations in a local key-value store.
//
// The whole collection lives in one JSON blob and is rewritten on every mutation. That is an O(n) write per
// message and is meant for a single user's local history, not for large archives.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RichardoC/aura/internal/db"
	"github.com/RichardoC/aura/internal/models"
	"go.uber.org/zap"
)

const (
	ChatsKey       = "aura_chats"
	RecentFilesKey = "aura_recent_files"
)

type Options struct {
	// MaxConversations bounds the collection; the oldest conversations are dropped. 0 means unbounded.
	MaxConversations int
	// MaxMessages bounds each conversation; the oldest messages are dropped. 0 means unbounded.
	MaxMessages    int
	MaxRecentFiles int
	// Now returns epoch millis. Defaults to models.NowMillis.
	Now func() int64
}

func DefaultOptions() Options {
	return Options{
		MaxConversations: 100,
		MaxMessages:      200,
		MaxRecentFiles:   50,
	}
}

// Store is safe for concurrent use. Every mutation is persisted before it returns. When persisting fails the
// in-memory state keeps the mutation and the error is returned, so a session survives a full disk.
type Store struct {
	mu          sync.Mutex
	kv          db.KV
	logger      *zap.Logger
	opts        Options
	chats       []*models.Conversation
	recentFiles []models.FileAttachment
}

// New loads the existing collection from kv.
func New(kv db.KV, logger *zap.Logger, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = models.NowMillis
	}
	s := &Store{kv: kv, logger: logger, opts: opts}
	s.Load()
	return s
}

// Load replaces the in-memory collection with the persisted one. A missing or unreadable blob is an empty store.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = nil
	if err := s.readBlob(ChatsKey, &s.chats); err != nil {
		s.logger.Warn("discarding unreadable chat history", zap.String("key", ChatsKey), zap.Error(err))
		s.chats = nil
	}
	s.chats = s.sanitize(s.chats)

	s.recentFiles = nil
	if err := s.readBlob(RecentFilesKey, &s.recentFiles); err != nil {
		s.logger.Warn("discarding unreadable recent files", zap.String("key", RecentFilesKey), zap.Error(err))
		s.recentFiles = nil
	}

	s.logger.Debug("loaded chat history", zap.Int("conversations", len(s.chats)))
}

// sanitize drops null entries, entries without an id and repeated ids, and backfills a missing kind.
func (s *Store) sanitize(chats []*models.Conversation) []*models.Conversation {
	seen := make(map[string]struct{}, len(chats))
	kept := chats[:0]
	for _, c := range chats {
		if c == nil || c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if c.Kind == "" {
			c.Kind = models.KindGeneric
		}
		kept = append(kept, c)
	}
	if dropped := len(chats) - len(kept); dropped > 0 {
		s.logger.Warn("dropped malformed conversations from chat history", zap.Int("dropped", dropped))
	}
	return kept
}

func (s *Store) readBlob(key string, v any) error {
	raw, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Persist writes the full collection.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	chats := s.chats
	if chats == nil {
		chats = []*models.Conversation{}
	}
	raw, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}
	if err := s.kv.Put(ChatsKey, raw); err != nil {
		s.logger.Error("failed to persist chat history", zap.Error(err))
		return fmt.Errorf("failed to persist chat history: %w", err)
	}
	return nil
}

func (s *Store) persistFilesLocked() error {
	raw, err := json.Marshal(s.recentFiles)
	if err != nil {
		return fmt.Errorf("failed to encode recent files: %w", err)
	}
	if err := s.kv.Put(RecentFilesKey, raw); err != nil {
		s.logger.Error("failed to persist recent files", zap.Error(err))
		return fmt.Errorf("failed to persist recent files: %w", err)
	}
	return nil
}

// CreateConversation inserts a new conversation at the front and returns a copy of it. The copy is returned
// even when err is non-nil.
func (s *Store) CreateConversation(seed string, kind models.Kind) (*models.Conversation, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown chat kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &models.Conversation{
		ID:        models.NewConversationID(),
		Title:     models.DeriveTitle(seed),
		Kind:      kind,
		Messages:  []models.Message{},
		CreatedAt: s.opts.Now(),
	}
	s.chats = append([]*models.Conversation{conv}, s.chats...)
	if limit := s.opts.MaxConversations; limit > 0 && len(s.chats) > limit {
		s.chats = s.chats[:limit]
	}

	s.logger.Debug("created conversation",
		zap.String("id", conv.ID),
		zap.String("kind", string(kind)))

	return conv.Clone(), s.persistLocked()
}

func (s *Store) find(id string) *models.Conversation {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) GetConversation(id string) (*models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(id)
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

// AppendMessage is a no-op for an unknown id. Timestamps never go backwards within a conversation.
func (s *Store) AppendMessage(id string, role models.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.find(id)
	if c == nil {
		s.logger.Debug("append to unknown conversation ignored", zap.String("id", id))
		return nil
	}

	ts := s.opts.Now()
	if last := c.LastTS(); ts < last {
		ts = last
	}
	c.Messages = append(c.Messages, models.Message{Role: role, Text: text, TS: ts})
	if limit := s.opts.MaxMessages; limit > 0 && len(c.Messages) > limit {
		c.Messages = append([]models.Message(nil), c.Messages[len(c.Messages)-limit:]...)
	}
	return s.persistLocked()
}

// AddFile records attachment metadata on the conversation and in the recent files list.
func (s *Store) AddFile(id string, f models.FileAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.find(id)
	if c == nil {
		return nil
	}
	if f.TS == 0 {
		f.TS = s.opts.Now()
	}
	c.Files = append(c.Files, f)

	s.recentFiles = append([]models.FileAttachment{f}, s.recentFiles...)
	if limit := s.opts.MaxRecentFiles; limit > 0 && len(s.recentFiles) > limit {
		s.recentFiles = s.recentFiles[:limit]
	}

	if err := s.persistLocked(); err != nil {
		return err
	}
	return s.persistFilesLocked()
}

// ListConversations returns copies, most recent first. With kinds given only those kinds are returned.
func (s *Store) ListConversations(kinds ...models.Kind) []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Conversation, 0, len(s.chats))
	for _, c := range s.chats {
		if len(kinds) > 0 && !containsKind(kinds, c.Kind) {
			continue
		}
		out = append(out, *c.Clone())
	}
	return out
}

func containsKind(kinds []models.Kind, k models.Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func (s *Store) RecentFiles() []models.FileAttachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FileAttachment(nil), s.recentFiles...)
}

func (s *Store) DeleteConversation(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.chats {
		if c.ID == id {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			return true, s.persistLocked()
		}
	}
	return false, nil
}

// ClearKind removes every conversation of kind and returns how many were removed.
func (s *Store) ClearKind(kind models.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chats[:0]
	removed := 0
	for _, c := range s.chats {
		if c.Kind == kind {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.chats = kept
	if removed == 0 {
		return 0, nil
	}
	s.logger.Info("cleared chat history", zap.String("kind", string(kind)), zap.Int("removed", removed))
	return removed, s.persistLocked()
}
