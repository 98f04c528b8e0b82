// Package telegram is the chat transport: a minimal Bot API client,
// the long-poll update loop and the outbound message formatting.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hausgeist/hausgeist/internal/httpkit"
)

const defaultBaseURL = "https://api.telegram.org"

// maxDownloadSize caps voice-note downloads. The Bot API itself limits
// downloadable files to 20 MB.
const maxDownloadSize = 20 << 20

// APIError is a Bot API level failure (ok=false in the envelope).
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// User is the Bot API User object, reduced to what we read.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat identifies where a message came from and where replies go.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Voice is an incoming voice note.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type"`
}

// IncomingMessage is the Bot API Message object, reduced to what we
// handle: text and voice notes.
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Voice     *Voice `json:"voice"`
}

// Update is one long-poll result entry.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

type file struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// apiResponse is the Bot API response envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL string
	token   string
	logger  *slog.Logger

	// http serves ordinary calls; poll has no overall timeout because
	// getUpdates holds the connection open.
	http *http.Client
	poll *http.Client
}

// NewClient creates a Bot API client for the given bot token.
func NewClient(token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		logger:  logger,
		http: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		poll: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
}

// GetMe verifies the token and returns the bot's own identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, c.http, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls for new updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := c.call(ctx, c.poll, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage sends html to the chat with HTML formatting. If the API
// rejects the markup (a 400, usually unbalanced tags) it falls back to
// sending plain unformatted.
func (c *Client) SendMessage(ctx context.Context, chatID int64, html, plain string) error {
	err := c.send(ctx, chatID, html, "HTML")
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		c.logger.Warn("HTML message rejected, sending plain text",
			"chat_id", chatID,
			"description", apiErr.Description,
		)
		return c.send(ctx, chatID, plain, "")
	}
	return err
}

func (c *Client) send(ctx context.Context, chatID int64, text, parseMode string) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		params["parse_mode"] = parseMode
	}
	return c.call(ctx, c.http, "sendMessage", params, nil)
}

// SendChatAction shows "typing…" while a turn is being worked on.
// Failures are ignored; the indicator is cosmetic.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) {
	params := map[string]any{"chat_id": chatID, "action": action}
	if err := c.call(ctx, c.http, "sendChatAction", params, nil); err != nil {
		c.logger.Debug("sendChatAction failed", "chat_id", chatID, "error", err)
	}
}

// DownloadFile fetches a file's bytes by its file id (voice notes).
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	var f file
	if err := c.call(ctx, c.http, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, "", fmt.Errorf("getFile: %w", err)
	}
	if f.FilePath == "" {
		return nil, "", fmt.Errorf("getFile: no file_path for %s", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: %s: %s",
			resp.Status, httpkit.ReadErrorBody(resp.Body, 512))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	return data, f.FilePath, nil
}

// call performs one Bot API method call and unmarshals the result.
func (c *Client) call(ctx context.Context, httpc *http.Client, method string, params, out any) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	var body io.Reader
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s: %w", method, &APIError{
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		})
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}
