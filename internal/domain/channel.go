package domain

import (
	"fmt"
	"strings"
)

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
)

// Channels lists every supported channel in dispatch order.
var Channels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelSMS}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelSMS:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// DispatchOutcome is the result of one dispatch attempt on one channel.
type DispatchOutcome string

const (
	OutcomeSent    DispatchOutcome = "SENT"
	OutcomeFailed  DispatchOutcome = "FAILED"
	OutcomeSkipped DispatchOutcome = "SKIPPED"
)

func (o DispatchOutcome) String() string { return string(o) }

// Content limits per channel (in characters).
const (
	MaxSMSContent      = 160
	MaxWhatsAppContent = 4096
	MaxEmailContent    = 100000
)
