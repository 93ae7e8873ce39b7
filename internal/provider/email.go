package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/wneessen/go-mail"
)

const defaultSMTPTimeout = 15 * time.Second

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ImplicitTLS selects SMTPS (usually port 465) instead of opportunistic STARTTLS.
	ImplicitTLS bool
}

type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailSender delivers HTML emails over SMTP.
type EmailSender struct {
	client mailClient
	from   string
	domain string
}

func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	opts := []mail.Option{mail.WithTimeout(defaultSMTPTimeout)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return newEmailSender(client, cfg.From)
}

func newEmailSender(client mailClient, from string) (*EmailSender, error) {
	if client == nil {
		return nil, fmt.Errorf("smtp client is required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	messageDomain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		messageDomain = strings.Trim(from[at+1:], "> ")
	}

	return &EmailSender{client: client, from: from, domain: messageDomain}, nil
}

func (s *EmailSender) Send(ctx context.Context, msg Message) (*Delivery, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("email sender is not initialized")
	}
	msg.Channel = domain.ChannelEmail
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email message: %w", err)
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, &ProviderError{Channel: domain.ChannelEmail, Message: "invalid from address", Cause: err}
	}
	if err := m.To(strings.TrimSpace(msg.Recipient)); err != nil {
		return nil, invalidRecipient(domain.ChannelEmail, msg.Recipient, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.Body)

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.domain)
	m.SetMessageIDWithValue(messageID)
	m.SetDate()

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return nil, &ProviderError{
			Channel:   domain.ChannelEmail,
			Message:   "smtp",
			Transient: isTransientSMTPError(err),
			Cause:     err,
		}
	}

	return &Delivery{MessageID: messageID}, nil
}

func isTransientSMTPError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		return sendErr.IsTemp()
	}
	return IsTransient(err)
}
