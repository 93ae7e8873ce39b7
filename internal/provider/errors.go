package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

// ErrInvalidRecipient marks a recipient the channel cannot address, e.g. a phone number with too
// few digits. Such failures are never retried.
var ErrInvalidRecipient = errors.New("invalid recipient")

// Failure reasons reported by FailureReason.
const (
	ReasonInvalidRecipient = "invalid_recipient"
	ReasonTransient        = "transient_error"
	ReasonPermanent        = "permanent_error"
)

// ProviderError is a failed delivery attempt on one channel.
type ProviderError struct {
	Channel    domain.Channel
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	prefix := "send failed"
	if e.Channel != "" {
		prefix = strings.ToLower(e.Channel.String()) + " send failed"
	}
	parts := []string{prefix}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func invalidRecipient(channel domain.Channel, recipient string, cause error) *ProviderError {
	return &ProviderError{
		Channel: channel,
		Message: fmt.Sprintf("%v %q", ErrInvalidRecipient, recipient),
		Cause:   errors.Join(ErrInvalidRecipient, cause),
	}
}

// tagChannel stamps channel on a ProviderError raised below the sender.
func tagChannel(err error, channel domain.Channel) error {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Channel == "" {
		providerErr.Channel = channel
	}
	return err
}

// IsTransient reports whether a delivery may succeed when retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidRecipient) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// FailureReason classifies err for the failed-notification metric.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRecipient):
		return ReasonInvalidRecipient
	case IsTransient(err):
		return ReasonTransient
	default:
		return ReasonPermanent
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
