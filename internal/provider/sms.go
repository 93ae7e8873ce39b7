package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/shiptrack/internal/domain"
)

type SMSConfig struct {
	BaseURL string
	APIKey  string
	Sender  string
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// SMSSender posts messages of at most 160 characters to an API-key SMS gateway.
type SMSSender struct {
	client   *resty.Client
	endpoint string
	apiKey   string
	sender   string
}

func NewSMSSender(cfg SMSConfig, client *resty.Client) (*SMSSender, error) {
	baseURL, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("sms api key is required")
	}

	return &SMSSender{
		client:   newRestyClient(client),
		endpoint: baseURL + "/messages",
		apiKey:   apiKey,
		sender:   strings.TrimSpace(cfg.Sender),
	}, nil
}

func (s *SMSSender) Send(ctx context.Context, msg Message) (*Delivery, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("sms sender is not initialized")
	}
	msg.Channel = domain.ChannelSMS
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sms message: %w", err)
	}

	phone := NormalizePhone(msg.Recipient)
	if phone == "" {
		return nil, invalidRecipient(domain.ChannelSMS, msg.Recipient, nil)
	}

	response, err := postJSON(ctx, s.client, s.endpoint, map[string]string{
		"Authorization": "Bearer " + s.apiKey,
	}, smsRequest{
		To:   phone,
		From: s.sender,
		Text: msg.Body,
	})
	if err != nil {
		return nil, tagChannel(err, domain.ChannelSMS)
	}
	delivery, err := parseReply(response)
	if err != nil {
		return nil, tagChannel(err, domain.ChannelSMS)
	}
	return delivery, nil
}
