// Package mailer defines the black-box send capability the dispatch
// engine relies on, plus an HTTP client for a mail gateway that honors
// idempotency keys.
package mailer

import "context"

// SendRequest describes one vendor email
type SendRequest struct {
	To             string `json:"to"`
	From           string `json:"from"`
	FromName       string `json:"from_name,omitempty"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

// SendResult is the gateway's answer. AlreadySent means the gateway
// saw the idempotency key before and did not send again; dispatch
// treats that as success.
type SendResult struct {
	Accepted    bool   `json:"accepted"`
	AlreadySent bool   `json:"already_sent"`
	MessageID   string `json:"message_id,omitempty"`
}

// Mailer is the send capability consumed by the dispatch engine
type Mailer interface {
	Send(ctx context.Context, req *SendRequest) (*SendResult, error)
}
