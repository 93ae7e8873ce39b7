package provider

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

func TestFailureReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantReason    string
	}{
		{name: "gateway 503", err: &ProviderError{StatusCode: 503, Transient: true}, wantTransient: true, wantReason: ReasonTransient},
		{name: "gateway 400", err: &ProviderError{StatusCode: 400}, wantReason: ReasonPermanent},
		{name: "bad phone", err: invalidRecipient(domain.ChannelSMS, "123", nil), wantReason: ReasonInvalidRecipient},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), wantTransient: true, wantReason: ReasonTransient},
		{name: "canceled", err: context.Canceled, wantReason: ReasonPermanent},
		{name: "connection refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), wantTransient: true, wantReason: ReasonTransient},
		{name: "plain error", err: errors.New("boom"), wantReason: ReasonPermanent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tt.err); got != tt.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
			if got := FailureReason(tt.err); got != tt.wantReason {
				t.Fatalf("FailureReason() = %q, want %q", got, tt.wantReason)
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	err := tagChannel(&ProviderError{StatusCode: 500, Message: "upstream down"}, domain.ChannelWhatsApp)
	if got, want := err.Error(), "whatsapp send failed: status=500: upstream down"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	// An existing channel is kept.
	err = tagChannel(&ProviderError{Channel: domain.ChannelSMS}, domain.ChannelEmail)
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.Channel != domain.ChannelSMS {
		t.Fatalf("Channel = %v, want SMS", providerErr)
	}
}
