package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// BrevoConfig configures the Brevo transactional email API.
type BrevoConfig struct {
	APIKey      string
	URL         string
	SenderEmail string
	SenderName  string
	HTTPClient  *http.Client
}

type BrevoSender struct {
	cfg BrevoConfig
}

func NewBrevoSender(cfg BrevoConfig) *BrevoSender {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &BrevoSender{cfg: cfg}
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

func (s *BrevoSender) Send(ctx context.Context, m Mail) error {
	if m.ToEmail == "" || !strings.Contains(m.ToEmail, "@") {
		return fmt.Errorf("invalid recipient email: %q", m.ToEmail)
	}

	name := m.ToName
	if name == "" {
		name = m.ToEmail[:strings.Index(m.ToEmail, "@")]
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      map[string]string{"name": s.cfg.SenderName, "email": s.cfg.SenderEmail},
		To:          []map[string]string{{"email": m.ToEmail, "name": name}},
		Subject:     m.Subject,
		HTMLContent: m.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", s.cfg.APIKey)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// LogSender writes mail to the log instead of sending it. Used when no
// email API key is configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, m Mail) error {
	s.log.Info("email not sent, no provider configured",
		zap.String("to", m.ToEmail),
		zap.String("subject", m.Subject),
		zap.Int("html_bytes", len(m.HTML)),
	)
	return nil
}
