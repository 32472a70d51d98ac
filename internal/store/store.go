// Package store is the client for the REST message/conversation store. The
// store owns persistence: a message only exists once a create call here has
// succeeded, and close/reopen transitions are only real once confirmed here.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shoply/livechat/internal/models"
)

// Conversations is the REST surface the live channel depends on. The concrete
// endpoints are owned externally; tests substitute a mock.
type Conversations interface {
	FetchConversations(ctx context.Context, participantID string) ([]models.Conversation, error)
	FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error)
	CreateConversation(ctx context.Context) (*models.Conversation, error)
	CreateMessage(ctx context.Context, conversationID, body, clientNonce string) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	CloseConversation(ctx context.Context, conversationID string) error
	ReopenConversation(ctx context.Context, conversationID string) error
}

// Client talks JSON over HTTP with a bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("store: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("store: %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) FetchConversations(ctx context.Context, participantID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations?participant_id="+participantID, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// CreateConversation opens a new support thread for the calling customer. The
// server creates it in the waiting state.
func (c *Client) CreateConversation(ctx context.Context) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateMessage persists a message and returns it with the server-assigned
// MessageID and CreatedAt. The live push of the same message is deduplicated
// by the message log.
func (c *Client) CreateMessage(ctx context.Context, conversationID, body, clientNonce string) (*models.Message, error) {
	payload := map[string]string{"body": body, "client_nonce": clientNonce}
	var msg models.Message
	if err := c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/messages", payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/read", nil, nil)
}

func (c *Client) CloseConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/close", nil, nil)
}

func (c *Client) ReopenConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/reopen", nil, nil)
}
