// Package mail delivers transactional email.  Verification codes are the only
// message the service sends today.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
)

var (
	ErrSendFailed     = errors.New("mail: send failed")
	ErrInvalidConfig  = errors.New("mail: invalid config")
	ErrInvalidMessage = errors.New("mail: invalid message")
)

// Drivers accepted by MAIL_DRIVER.
const (
	DriverPostmark = "postmark"
	DriverQueue    = "queue"
	DriverDev      = "dev"
	DriverLog      = "log"
)

// Message is a single outbound email.  It is also the JSON payload of the
// mail queue.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	Tag      string `json:"tag,omitempty"`
}

// Validate checks the recipient address and that there is something to send.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: bad recipient %q", ErrInvalidMessage, m.To)
	}
	if m.Subject == "" || m.HTMLBody == "" {
		return fmt.Errorf("%w: subject and body are required", ErrInvalidMessage)
	}
	return nil
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
