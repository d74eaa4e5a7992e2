package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*CaptureMailer)(nil)

// CaptureMailer records notifications in memory and logs them instead of
// delivering them. It is used when no SMTP relay is configured.
type CaptureMailer struct {
	mu   sync.Mutex
	sent []model.Notification
}

// NewCaptureMailer creates an empty CaptureMailer.
func NewCaptureMailer() *CaptureMailer {
	return &CaptureMailer{}
}

// Send records n. It never fails.
func (m *CaptureMailer) Send(ctx context.Context, n model.Notification) error {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()

	slog.InfoContext(ctx, "alert captured",
		"to", n.To,
		"subject", n.Subject,
	)
	return nil
}

// Sent returns a copy of every notification recorded so far.
func (m *CaptureMailer) Sent() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// New returns an SMTPMailer when a relay host is configured, otherwise a
// CaptureMailer.
func New(cfg SMTPConfig) driven.Notifier {
	if cfg.Host == "" {
		slog.Info("smtp not configured, alerts will be captured and logged")
		return NewCaptureMailer()
	}
	return NewSMTPMailer(cfg)
}
