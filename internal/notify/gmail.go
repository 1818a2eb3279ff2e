package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"termin/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender sends mail through the Gmail API using a service account with
// domain-wide delegation. Unconfigured senders no-op.
type GmailSender struct {
	service  *gmail.Service
	from     string
	fromName string
	logger   *zerolog.Logger
}

func NewGmailSender(ctx context.Context, cfg config.GoogleConfig, fromName string, logger *zerolog.Logger) (*GmailSender, error) {
	sender := &GmailSender{from: cfg.SenderEmail, fromName: fromName, logger: logger}
	if cfg.CredentialsFile == "" || cfg.SenderEmail == "" {
		logger.Info().Msg("gmail not configured, email notifications disabled")
		return sender, nil
	}

	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}
	// Delegation: send as the configured workspace mailbox.
	jwtConfig.Subject = cfg.SenderEmail

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	sender.service = srv
	return sender, nil
}

func (g *GmailSender) IsConfigured() bool {
	return g != nil && g.service != nil
}

func (g *GmailSender) Send(ctx context.Context, to, subject, html string) error {
	raw := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		g.fromName, g.from, to, subject, html)

	message := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}
	if _, err := g.service.Users.Messages.Send("me", message).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send failed: %w", err)
	}

	g.logger.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
