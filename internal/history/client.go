// Package history talks to the assistant-chat HTTP endpoints and keeps an
// optional durable local cache of chat turns.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Turn is one user/assistant exchange.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Client is the HTTP client for the chat backend. Failed requests are never
// retried; the breaker only sheds load from a consistently failing upstream.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "chat-backend",
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Ask submits a prompt and returns the assistant reply.
func (c *Client) Ask(ctx context.Context, message, mode string, models []string) (string, error) {
	req := map[string]any{"message": message, "mode": mode, "models": models}
	var resp struct {
		Reply string `json:"reply"`
	}
	if err := c.postJSON(ctx, "/ask", req, &resp); err != nil {
		return "", fmt.Errorf("history.Ask: %w", err)
	}
	return resp.Reply, nil
}

// ChatNames lists the saved conversations.
func (c *Client) ChatNames(ctx context.Context) ([]string, error) {
	var resp struct {
		ChatNames []string `json:"chat_names"`
	}
	if err := c.get(ctx, "/get_chat_history", &resp); err != nil {
		return nil, fmt.Errorf("history.ChatNames: %w", err)
	}
	return resp.ChatNames, nil
}

// LoadChat fetches the turns of a named conversation.
func (c *Client) LoadChat(ctx context.Context, name string) ([]Turn, error) {
	var resp struct {
		History []Turn `json:"history"`
	}
	if err := c.get(ctx, "/load_chat/"+url.PathEscape(name), &resp); err != nil {
		return nil, fmt.Errorf("history.LoadChat: %w", err)
	}
	return resp.History, nil
}

// StartNewChat resets the server-side session to a fresh conversation.
func (c *Client) StartNewChat(ctx context.Context, name string) error {
	if err := c.get(ctx, "/start_new_chat/"+url.PathEscape(name), nil); err != nil {
		return fmt.Errorf("history.StartNewChat: %w", err)
	}
	return nil
}

// DeleteHistory wipes all saved conversations.
func (c *Client) DeleteHistory(ctx context.Context) error {
	if err := c.postJSON(ctx, "/delete_history", map[string]any{}, nil); err != nil {
		return fmt.Errorf("history.DeleteHistory: %w", err)
	}
	return nil
}

// UploadFile pushes an attachment and returns the server-side file path.
// This is the separate request/response step that precedes send_message.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("history.UploadFile: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("history.UploadFile: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("history.UploadFile: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("history.UploadFile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_file", &buf)
	if err != nil {
		return "", fmt.Errorf("history.UploadFile: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		FilePath string `json:"file_path"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("history.UploadFile: %w", err)
	}
	return resp.FilePath, nil
}

// EditMessage changes a sent message's content.
func (c *Client) EditMessage(ctx context.Context, messageID int64, content string) error {
	form := url.Values{"content": {content}}
	if err := c.postForm(ctx, fmt.Sprintf("/edit_message/%d", messageID), form, nil); err != nil {
		return fmt.Errorf("history.EditMessage: %w", err)
	}
	return nil
}

// SetDisappearTimer arms the disappearing-message TTL on a sent message.
func (c *Client) SetDisappearTimer(ctx context.Context, messageID int64, seconds int) error {
	form := url.Values{"timer": {fmt.Sprint(seconds)}}
	if err := c.postForm(ctx, fmt.Sprintf("/set_disappear_timer/%d", messageID), form, nil); err != nil {
		return fmt.Errorf("history.SetDisappearTimer: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Message: apiErrorMessage(body)}
		}
		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func apiErrorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
