// Package mail delivers outbound email through the email-service HTTP API.
//
// Client performs one POST per message. Dispatcher runs a small worker pool
// in front of a Sender so request handlers can hand a message off without
// waiting on the network.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sakif/study-tracker/internal/apperror"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// VerificationSubject is the subject line of the account verification email.
const VerificationSubject = "Verify Your Account"

// Message is the JSON body the email service expects.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// VerificationMessage builds the email that carries the verification link.
func VerificationMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: VerificationSubject,
		Text:    "Click the link below to verify your account:\n\n" + link,
	}
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client posts messages to the email service.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a Client for the service at url. A zero timeout falls
// back to DefaultTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Send posts msg and treats any non-2xx answer as a delivery failure.
func (c *Client) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail: encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.DeliveryFailure(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.DeliveryFailure(fmt.Errorf("email service returned %s", resp.Status))
	}
	return nil
}
