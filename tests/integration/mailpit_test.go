//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MailpitClient reads the Mailpit inbox over its REST API.
type MailpitClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMailpitClient creates a new Mailpit API client.
func NewMailpitClient(host string, port int) *MailpitClient {
	return &MailpitClient{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// MailpitMessage is a message summary from Mailpit.
type MailpitMessage struct {
	ID      string           `json:"ID"`
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
}

// MailpitAddress is an email address.
type MailpitAddress struct {
	Address string `json:"Address"`
	Name    string `json:"Name"`
}

type messagesResponse struct {
	Messages []MailpitMessage `json:"messages"`
}

// SearchByRecipient returns the messages addressed to email.
func (c *MailpitClient) SearchByRecipient(email string) ([]MailpitMessage, error) {
	var result messagesResponse
	if err := c.getJSON("/api/v1/search?query="+url.QueryEscape("to:"+email), &result); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return result.Messages, nil
}

// GetMessage returns one message including its plain text body.
func (c *MailpitClient) GetMessage(id string) (*MailpitMessage, error) {
	var msg MailpitMessage
	if err := c.getJSON("/api/v1/message/"+id, &msg); err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// WaitForRecipient polls until count messages for email arrive.
func (c *MailpitClient) WaitForRecipient(email string, count int, timeout time.Duration) ([]MailpitMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		messages, err := c.SearchByRecipient(email)
		if err == nil && len(messages) >= count {
			return messages, nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return nil, err
			}
			return messages, fmt.Errorf("timeout waiting for %d messages to %s, got %d", count, email, len(messages))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (c *MailpitClient) getJSON(path string, v any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
