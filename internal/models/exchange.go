package models

// Turn is one prior message as the backend expects it in conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Attachment carries file bytes for a single request. Content is never persisted.
type Attachment struct {
	Name     string
	MimeType string
	Content  []byte
}

func (a *Attachment) Meta(ts int64) FileAttachment {
	return FileAttachment{Name: a.Name, Size: int64(len(a.Content)), MimeType: a.MimeType, TS: ts}
}

// ExchangeRequest is one outgoing message and the context the backend needs to answer it.
type ExchangeRequest struct {
	ConversationID string
	Kind           Kind
	Text           string
	File           *Attachment
	History        []Turn
}
