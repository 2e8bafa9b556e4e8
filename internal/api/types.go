package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/RichardoC/aura/internal/models"
	"github.com/tidwall/gjson"
)

type MessageRequest struct {
	Message        string        `json:"message"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Kind           models.Kind   `json:"kind,omitempty"`
	Context        []models.Turn `json:"context,omitempty"`
}

type ClearRequest struct {
	Kind models.Kind `json:"kind"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrMalformedReply marks a 2xx answer whose body is not JSON.
var ErrMalformedReply = errors.New("backend reply is not valid JSON")

// HTTPError is a non-2xx answer from the backend, or a 2xx answer that could not be read. Err is set in the
// latter case.
type HTTPError struct {
	StatusCode int
	// Message is the body's "error" field, empty when the body had none.
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend returned %d: %v", e.StatusCode, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Unwrap() error { return e.Err }

func (e *HTTPError) HTTPStatus() int       { return e.StatusCode }
func (e *HTTPError) ServerMessage() string { return e.Message }

const NoReply = "No response from AI."

// DefaultReplyFields lists the reply field names the backend variants use, in lookup order.
var DefaultReplyFields = []string{"answer", "ai_response", "reply", "message"}

// Profile maps a chat kind onto backend endpoints and the reply field names to accept.
type Profile struct {
	TextPath    string
	UploadPath  string
	ReplyFields []string
}

func DefaultProfiles() map[models.Kind]Profile {
	return map[models.Kind]Profile{
		models.KindMental: {
			TextPath:    "/api/chat/mental",
			UploadPath:  "/api/study/analyze",
			ReplyFields: DefaultReplyFields,
		},
		models.KindStudy: {
			TextPath:    "/api/chat",
			UploadPath:  "/api/study/analyze",
			ReplyFields: DefaultReplyFields,
		},
		models.KindGeneric: {
			TextPath:    "/api/chat",
			UploadPath:  "/api/study/analyze",
			ReplyFields: DefaultReplyFields,
		},
	}
}

// ExtractReply returns the first present, non-empty string field from ReplyFields, or NoReply when none is.
// A body that is not JSON, including an empty or truncated one, yields ErrMalformedReply.
func (p Profile) ExtractReply(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformedReply
	}
	fields := p.ReplyFields
	if len(fields) == 0 {
		fields = DefaultReplyFields
	}
	for _, f := range fields {
		r := gjson.GetBytes(body, f)
		if r.Type == gjson.String && r.Str != "" {
			return r.Str, nil
		}
	}
	return NoReply, nil
}

func extractError(body []byte) string {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Error)
}
