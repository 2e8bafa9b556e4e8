// Package api is the HTTP client for the chat backend.
//
// Text-only messages go out as JSON; a message with a file goes out as multipart/form-data. Requests are never
// retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/RichardoC/aura/internal/models"
	"go.uber.org/zap"
)

// ErrNetwork marks a request that never produced an HTTP response.
var ErrNetwork = errors.New("network error")

const (
	DefaultClearPath = "/api/chat/clear"
	maxBodyBytes     = 8 << 20
)

type Client struct {
	baseURL   string
	http      *http.Client
	profiles  map[models.Kind]Profile
	clearPath string
	logger    *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithProfile(kind models.Kind, p Profile) Option {
	return func(cl *Client) { cl.profiles[kind] = p }
}

func WithClearPath(path string) Option {
	return func(cl *Client) { cl.clearPath = path }
}

func NewClient(baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{},
		profiles:  DefaultProfiles(),
		clearPath: DefaultClearPath,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) profile(kind models.Kind) Profile {
	if p, ok := c.profiles[kind]; ok {
		return p
	}
	return c.profiles[models.KindGeneric]
}

// Exchange sends one message and returns the reply text.
//
// A non-2xx answer, or a 2xx answer whose body is not JSON, is returned as *HTTPError. A transport failure wraps ErrNetwork. When ctx ends first its
// error (context.Canceled or context.DeadlineExceeded) is returned unchanged.
func (c *Client) Exchange(ctx context.Context, req models.ExchangeRequest) (string, error) {
	p := c.profile(req.Kind)

	var (
		httpReq *http.Request
		err     error
	)
	if req.File != nil {
		httpReq, err = c.multipartRequest(ctx, p, req)
	} else {
		httpReq, err = c.jsonRequest(ctx, c.baseURL+p.TextPath, MessageRequest{
			Message:        req.Text,
			ConversationID: req.ConversationID,
			Kind:           req.Kind,
			Context:        req.History,
		})
	}
	if err != nil {
		return "", err
	}

	start := time.Now()
	status, body, err := c.do(ctx, httpReq)
	if err != nil {
		return "", err
	}

	c.logger.Debug("backend replied",
		zap.String("path", httpReq.URL.Path),
		zap.String("conversation_id", req.ConversationID),
		zap.Duration("elapsed", time.Since(start)))

	reply, err := p.ExtractReply(body)
	if err != nil {
		c.logger.Warn("backend reply could not be read",
			zap.String("path", httpReq.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", len(body)))
		return "", &HTTPError{StatusCode: status, Err: err}
	}
	return reply, nil
}

// Clear asks the backend to drop its server-side history for kind.
func (c *Client) Clear(ctx context.Context, kind models.Kind) error {
	httpReq, err := c.jsonRequest(ctx, c.baseURL+c.clearPath, ClearRequest{Kind: kind})
	if err != nil {
		return err
	}
	_, _, err = c.do(ctx, httpReq)
	return err
}

func (c *Client) jsonRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) multipartRequest(ctx context.Context, p Profile, r models.ExchangeRequest) (*http.Request, error) {
	history := r.History
	if history == nil {
		history = []models.Turn{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"prompt", r.Text},
		{"conversation_history", string(historyJSON)},
		{"conversation_id", r.ConversationID},
		{"kind", string(r.Kind)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	mimeType := r.File.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, r.File.Name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(r.File.Content); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	path := p.UploadPath
	if path == "" {
		path = p.TextPath
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do returns the status and body of a 2xx answer.
func (c *Client) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		c.logger.Warn("backend unreachable", zap.String("url", req.URL.String()), zap.Error(err))
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{StatusCode: resp.StatusCode, Message: extractError(body)}
		c.logger.Warn("backend returned an error",
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", herr.Message))
		return 0, nil, herr
	}
	return resp.StatusCode, body, nil
}
