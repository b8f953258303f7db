package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// PermanentError is a Bot API rejection that retrying cannot fix, such as
// a blocked bot or an unknown chat.
type PermanentError struct {
	Status      int
	Description string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("telegram rejected message (%d): %s", e.Status, e.Description)
}

// TelegramClient calls the Bot API sendMessage method.
type TelegramClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewTelegramClient(baseURL, token string) *TelegramClient {
	return &TelegramClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (c *TelegramClient) Send(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return err
	}
	url := c.baseURL + "/bot" + c.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error calling telegram: %w", err)
	}
	defer resp.Body.Close()

	var out botResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode == http.StatusOK && out.OK {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return &PermanentError{Status: resp.StatusCode, Description: out.Description}
	}
	return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, out.Description)
}

// LogSender writes messages to the log instead of sending them. It is used
// when no bot token is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, chatID int64, text string) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("message not sent, no bot token", "chat_id", chatID, "length", len(text))
	return nil
}
