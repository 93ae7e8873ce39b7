package domain

import (
	"fmt"
	"strings"
	"time"
)

// MessageTemplate is a stored template. An empty Status marks the channel default.
type MessageTemplate struct {
	Channel   Channel
	Status    string
	Subject   string
	Body      string
	Version   int
	UpdatedAt time.Time
}

// TemplateName is the storage key of a template, e.g. "email:em trânsito" or "sms:default".
func TemplateName(channel Channel, status string) string {
	key := strings.ToLower(strings.TrimSpace(status))
	if key == "" {
		key = "default"
	}
	return strings.ToLower(channel.String()) + ":" + key
}

func (t *MessageTemplate) Name() string {
	return TemplateName(t.Channel, t.Status)
}

func (t *MessageTemplate) Validate() error {
	if !t.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, t.Channel)
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("%w: template body is required", ErrValidation)
	}
	return nil
}
