package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMental  Kind = "mental"
	KindStudy   Kind = "study"
	KindGeneric Kind = "generic"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMental, KindStudy, KindGeneric:
		return true
	}
	return false
}

// ParseKind accepts the kind names case-insensitively. Empty input maps to generic.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindGeneric, nil
	}
	if !k.Valid() {
		return "", fmt.Errorf("unknown chat kind %q", s)
	}
	return k, nil
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	TS   int64  `json:"ts"` // epoch millis
}

type FileAttachment struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"type"`
	TS       int64  `json:"ts"`
}

type Conversation struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Kind      Kind             `json:"kind"`
	Messages  []Message        `json:"messages"`
	Files     []FileAttachment `json:"files,omitempty"`
	CreatedAt int64            `json:"createdAt"`
}

// Clone returns a deep copy so callers never alias the store's slices.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Files = append([]FileAttachment(nil), c.Files...)
	return &out
}

// LastTS is the timestamp of the newest message, or zero.
func (c *Conversation) LastTS() int64 {
	if len(c.Messages) == 0 {
		return 0
	}
	return c.Messages[len(c.Messages)-1].TS
}

const (
	titleWords   = 5
	defaultTitle = "New conversation"
)

// DeriveTitle keeps the first five words of seed and marks truncation with "...".
func DeriveTitle(seed string) string {
	words := strings.Fields(seed)
	if len(words) == 0 {
		return defaultTitle
	}
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}

// NewConversationID returns a time-ordered id; UUIDv7 carries 74 random bits after the timestamp.
func NewConversationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "chat_" + uuid.NewString()
	}
	return "chat_" + id.String()
}

func NowMillis() int64 {
	return time.Now().UnixMilli()
}

const fileMarkerPrefix = "FILE::"

// FileMarker is the transcript text that stands in for an attached file.
func FileMarker(f FileAttachment) string {
	return fmt.Sprintf("%s%s::%d::%s", fileMarkerPrefix, f.Name, f.Size, f.MimeType)
}

// ParseFileMarker reverses FileMarker. The name may itself contain "::".
func ParseFileMarker(text string) (FileAttachment, bool) {
	if !strings.HasPrefix(text, fileMarkerPrefix) {
		return FileAttachment{}, false
	}
	rest := strings.TrimPrefix(text, fileMarkerPrefix)
	mimeSep := strings.LastIndex(rest, "::")
	if mimeSep < 0 {
		return FileAttachment{}, false
	}
	mime := rest[mimeSep+2:]
	rest = rest[:mimeSep]
	sizeSep := strings.LastIndex(rest, "::")
	if sizeSep < 0 {
		return FileAttachment{}, false
	}
	size, err := strconv.ParseInt(rest[sizeSep+2:], 10, 64)
	if err != nil {
		return FileAttachment{}, false
	}
	return FileAttachment{Name: rest[:sizeSep], Size: size, MimeType: mime}, true
}
