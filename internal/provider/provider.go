package provider

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

// Sender is the outbound delivery port of one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Delivery, error)
}

// Message is one rendered notification addressed to one recipient.
type Message struct {
	Channel   domain.Channel
	Recipient string
	Subject   string
	Body      string
}

// Delivery stores provider call metadata for audit and persistence.
type Delivery struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Registry maps each channel to its sender.
type Registry map[domain.Channel]Sender

func (r Registry) Sender(channel domain.Channel) (Sender, bool) {
	s, ok := r[channel]
	return s, ok && s != nil
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: body is required", domain.ErrValidation)
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, m.Channel)
	}

	contentLen := utf8.RuneCountInString(m.Body)
	switch m.Channel {
	case domain.ChannelSMS:
		if contentLen > domain.MaxSMSContent {
			return fmt.Errorf("%w: SMS content exceeds %d characters (got %d)", domain.ErrValidation, domain.MaxSMSContent, contentLen)
		}
	case domain.ChannelWhatsApp:
		if contentLen > domain.MaxWhatsAppContent {
			return fmt.Errorf("%w: WhatsApp content exceeds %d characters (got %d)", domain.ErrValidation, domain.MaxWhatsAppContent, contentLen)
		}
	case domain.ChannelEmail:
		if contentLen > domain.MaxEmailContent {
			return fmt.Errorf("%w: email content exceeds %d characters (got %d)", domain.ErrValidation, domain.MaxEmailContent, contentLen)
		}
	}

	return nil
}

// NormalizePhone keeps only digits, the form messaging APIs expect.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
