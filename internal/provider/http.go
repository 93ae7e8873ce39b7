package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultHTTPTimeout = 10 * time.Second

func newRestyClient(client *resty.Client) *resty.Client {
	if client == nil {
		client = resty.New()
		client.SetTimeout(defaultHTTPTimeout)
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultHTTPTimeout)
	}
	client.SetRetryCount(0)
	return client
}

func validateBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("provider base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return "", fmt.Errorf("invalid provider base url: %w", err)
	}
	return trimmed, nil
}

// postJSON sends body and maps transport failures and non-2xx answers to ProviderError.
func postJSON(ctx context.Context, client *resty.Client, endpoint string, headers map[string]string, body any) (*resty.Response, error) {
	response, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return response, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

// providerReply is the union of the reply shapes used by the messaging APIs.
type providerReply struct {
	Success   *bool  `json:"success"`
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
	ZaapID    string `json:"zaapId"`
	Error     string `json:"error"`
}

func parseReply(response *resty.Response) (*Delivery, error) {
	body := strings.TrimSpace(response.String())
	delivery := &Delivery{
		StatusCode: response.StatusCode(),
		Body:       body,
		MessageID:  headerMessageID(response),
	}

	var reply providerReply
	if body == "" || json.Unmarshal([]byte(body), &reply) != nil {
		return delivery, nil
	}

	if reply.Success != nil && !*reply.Success {
		msg := strings.TrimSpace(reply.Error)
		if msg == "" {
			msg = "provider reported failure"
		}
		return nil, &ProviderError{
			StatusCode: delivery.StatusCode,
			Message:    msg,
		}
	}

	for _, id := range []string{reply.MessageID, reply.ID, reply.ZaapID} {
		if id = strings.TrimSpace(id); id != "" {
			delivery.MessageID = id
			break
		}
	}
	return delivery, nil
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func headerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Message-ID", "X-Correlation-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
