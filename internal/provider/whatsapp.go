package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/shiptrack/internal/domain"
)

type WhatsAppConfig struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
}

type whatsAppRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// WhatsAppSender sends text messages through an instance/token WhatsApp HTTP API.
type WhatsAppSender struct {
	client      *resty.Client
	endpoint    string
	clientToken string
}

func NewWhatsAppSender(cfg WhatsAppConfig, client *resty.Client) (*WhatsAppSender, error) {
	baseURL, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	instance := strings.TrimSpace(cfg.InstanceID)
	token := strings.TrimSpace(cfg.Token)
	if instance == "" || token == "" {
		return nil, fmt.Errorf("whatsapp instance id and token are required")
	}

	return &WhatsAppSender{
		client: newRestyClient(client),
		endpoint: fmt.Sprintf("%s/instances/%s/token/%s/send-text",
			baseURL, url.PathEscape(instance), url.PathEscape(token)),
		clientToken: strings.TrimSpace(cfg.ClientToken),
	}, nil
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) (*Delivery, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("whatsapp sender is not initialized")
	}
	msg.Channel = domain.ChannelWhatsApp
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid whatsapp message: %w", err)
	}

	phone := NormalizePhone(msg.Recipient)
	if phone == "" {
		return nil, invalidRecipient(domain.ChannelWhatsApp, msg.Recipient, nil)
	}

	headers := map[string]string{}
	if s.clientToken != "" {
		headers["Client-Token"] = s.clientToken
	}

	response, err := postJSON(ctx, s.client, s.endpoint, headers, whatsAppRequest{
		Phone:   phone,
		Message: msg.Body,
	})
	if err != nil {
		return nil, tagChannel(err, domain.ChannelWhatsApp)
	}
	delivery, err := parseReply(response)
	if err != nil {
		return nil, tagChannel(err, domain.ChannelWhatsApp)
	}
	return delivery, nil
}
