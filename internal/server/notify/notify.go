// Package notify defines the notification collaborators: an email sender and
// a secondary messaging channel. Delivery providers live behind these
// interfaces; each send succeeds or fails independently, and a failure never
// rolls back the record that triggered it.
package notify

import (
	"context"
	"fmt"

	"github.com/dstepanovs/teamplan/internal/logging"
)

// Payload is a rendered notification.
type Payload struct {
	Subject string
	Body    string
}

// EmailSender delivers a payload to an email address.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, p Payload) error
}

// Messenger delivers a payload over the secondary channel (a Signal-style
// number).
type Messenger interface {
	SendMessage(ctx context.Context, number string, p Payload) error
}

// InvitationEmail renders the project invitation email. The accept token is
// part of the link the recipient follows.
func InvitationEmail(projectName, inviterName, token string) Payload {
	return Payload{
		Subject: fmt.Sprintf("%s invited you to %q on teamplan", inviterName, projectName),
		Body: fmt.Sprintf(
			"%s invited you to collaborate on %q.\n\nAccept the invitation: https://app.teamplan.dev/invitations/accept?token=%s\n",
			inviterName, projectName, token),
	}
}

// InvitationMessage renders the short-form variant for the messaging channel.
func InvitationMessage(projectName, token string) Payload {
	return Payload{
		Body: fmt.Sprintf("You were invited to %q on teamplan. Accept: https://app.teamplan.dev/invitations/accept?token=%s", projectName, token),
	}
}

// LogSender is the development implementation of both collaborators. It logs
// that a delivery happened without the payload body, since subjects and
// bodies carry decrypted PII.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "notify")}
}

func (s *LogSender) SendEmail(ctx context.Context, to string, p Payload) error {
	s.log.Info(ctx, "email delivered (dev sender)")
	return nil
}

func (s *LogSender) SendMessage(ctx context.Context, number string, p Payload) error {
	s.log.Info(ctx, "message delivered (dev sender)")
	return nil
}
