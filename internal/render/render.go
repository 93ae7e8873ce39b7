// Package render builds channel messages from stored templates and shipment fields.
package render

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
)

const defaultDateLayout = "02/01/2006"

const (
	fallbackSubject   = "Atualização do pedido {tracking_code}"
	fallbackEmailBody = "<p>Olá {recipient_name},</p>" +
		"<p>O status do seu pedido <strong>{tracking_code}</strong> mudou para <strong>{status}</strong> em {date}.</p>" +
		"<p>Origem: {origin}<br>Destino: {destination}</p>" +
		"<p>Acompanhe em <a href=\"{tracking_url}\">{tracking_url}</a></p>"
	fallbackTextBody = "Olá {recipient_name}, seu pedido {tracking_code} está: {status} ({date}). Acompanhe: {tracking_url}"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Message is a rendered notification ready for a channel.
type Message struct {
	Channel domain.Channel
	Subject string
	Body    string
}

type Options struct {
	TrackingBaseURL string
	Location        *time.Location
	DateLayout      string
}

// Renderer is immutable after construction; Render has no side effects.
type Renderer struct {
	templates       map[string]domain.MessageTemplate
	trackingBaseURL string
	loc             *time.Location
	dateLayout      string
}

func New(templates []domain.MessageTemplate, opts Options) *Renderer {
	byName := make(map[string]domain.MessageTemplate, len(templates))
	for _, tmpl := range templates {
		byName[tmpl.Name()] = tmpl
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := opts.DateLayout
	if layout == "" {
		layout = defaultDateLayout
	}

	return &Renderer{
		templates:       byName,
		trackingBaseURL: strings.TrimRight(strings.TrimSpace(opts.TrackingBaseURL), "/"),
		loc:             loc,
		dateLayout:      layout,
	}
}

// Render looks up channel+status, then the channel default, then the built-in fallback.
func (r *Renderer) Render(channel domain.Channel, status string, shipment domain.Shipment) Message {
	subject, body := r.lookup(channel, status)
	values := r.values(status, shipment)

	msg := Message{
		Channel: channel,
		Subject: Substitute(subject, values),
		Body:    Substitute(body, values),
	}
	if channel == domain.ChannelSMS {
		msg.Body = Truncate(msg.Body, domain.MaxSMSContent)
	}
	return msg
}

// TrackingURL returns the public tracking page for a code.
func (r *Renderer) TrackingURL(code string) string {
	if r.trackingBaseURL == "" || code == "" {
		return ""
	}
	return r.trackingBaseURL + "/" + url.PathEscape(code)
}

func (r *Renderer) lookup(channel domain.Channel, status string) (string, string) {
	if tmpl, ok := r.templates[domain.TemplateName(channel, status)]; ok && strings.TrimSpace(status) != "" {
		return subjectOrFallback(tmpl.Subject), tmpl.Body
	}
	if tmpl, ok := r.templates[domain.TemplateName(channel, "")]; ok {
		return subjectOrFallback(tmpl.Subject), tmpl.Body
	}

	if channel == domain.ChannelEmail {
		return fallbackSubject, fallbackEmailBody
	}
	return "", fallbackTextBody
}

func (r *Renderer) values(status string, shipment domain.Shipment) map[string]string {
	date := ""
	if !shipment.UpdatedAt.IsZero() {
		date = shipment.UpdatedAt.In(r.loc).Format(r.dateLayout)
	}

	return map[string]string{
		"recipient_name": shipment.RecipientName,
		"sender_name":    shipment.SenderName,
		"tracking_code":  shipment.TrackingCode,
		"status":         status,
		"date":           date,
		"origin":         shipment.OriginAddress,
		"destination":    shipment.DestinationAddress,
		"product":        shipment.ProductName,
		"tracking_url":   r.TrackingURL(shipment.TrackingCode),
	}
}

func subjectOrFallback(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return fallbackSubject
	}
	return subject
}

// Substitute replaces every {placeholder}; names without a value become "".
func Substitute(tmpl string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		return values[token[1:len(token)-1]]
	})
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit < 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
