package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

const defaultBrevoEndpoint = "https://api.brevo.com/v3/sendEmail"

// BrevoConfig configures the Brevo transactional email notifier.
type BrevoConfig struct {
	APIKey    string        `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	FromEmail string        `json:"from_email" yaml:"from_email" mapstructure:"from_email"`
	FromName  string        `json:"from_name" yaml:"from_name" mapstructure:"from_name"`
	Endpoint  string        `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// BrevoNotifier sends messages as email through the Brevo HTTP API.
type BrevoNotifier struct {
	cfg    BrevoConfig
	client *http.Client
}

// NewBrevoNotifier creates a notifier. A nil client gets one with cfg.Timeout.
func NewBrevoNotifier(cfg BrevoConfig, client *http.Client) *BrevoNotifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultBrevoEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &BrevoNotifier{cfg: cfg, client: client}
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent"`
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

func (n *BrevoNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoContact
	}

	payload, err := json.Marshal(brevoRequest{
		Sender:      brevoContact{Name: n.cfg.FromName, Email: n.cfg.FromEmail},
		To:          []brevoContact{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: toHTML(msg.Body),
		TextContent: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("notify/brevo: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify/brevo: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", n.cfg.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify/brevo: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notify/brevo: status %d", resp.StatusCode)
	}
	return nil
}

func toHTML(body string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(body, "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
