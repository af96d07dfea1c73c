package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var _ Mailer = (*SendGrid)(nil)

// SendGrid delivers messages through the SendGrid v3 API.
type SendGrid struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGrid creates a SendGrid mailer. fromAddr must be a sender address
// verified with SendGrid, or the API rejects every send with a 403.
func NewSendGrid(apiKey, fromAddr, fromName string) *SendGrid {
	return &SendGrid{
		client:   sendgrid.NewSendClient(apiKey),
		from:     fromAddr,
		fromName: fromName,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	m := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		"", // plain text only, no HTML part
	)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("mailer: sendgrid request: %w", err)
	}
	// SendGrid signals rejection (bad key, unverified sender, ...) via the
	// HTTP status, not the error return.
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mailer: sendgrid responded %d: %s", resp.StatusCode, resp.Body)
	}

	return nil
}

// Disabled is the Mailer used when no SENDGRID_API_KEY is configured: it
// drops every message. The server still runs; only notifications are off.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, msg Message) error {
	return nil
}
