package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/msi-broadcast-etl/internal/domain"
	"gopkg.in/gomail.v2"
)

// sender is the subset of *gomail.Dialer used by Notifier.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds the SMTP relay and addressing settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	CC       []string
}

// Notifier emails the malformed-report notification. It implements
// pipeline.Notifier.
type Notifier struct {
	cfg    Config
	dialer sender
	logger *slog.Logger
}

// NewNotifier creates a Notifier that relays through cfg.Host.
func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// Send delivers n as an HTML message with a plain-text alternative.
func (s *Notifier) Send(ctx context.Context, n domain.Notification) error {
	if n.IsEmpty() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dialer.DialAndSend(s.message(n)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", s.cfg.Host, err)
	}
	s.logger.Info("notification emailed",
		"to", strings.Join(s.cfg.To, ","),
		"reports", len(n.Reports),
	)
	return nil
}

func (s *Notifier) message(n domain.Notification) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", s.cfg.To...)
	if len(s.cfg.CC) > 0 {
		msg.SetHeader("Cc", s.cfg.CC...)
	}
	msg.SetHeader("Subject", n.Subject)
	msg.SetDateHeader("Date", n.GeneratedAt)
	msg.SetBody("text/plain", plainBody(n))
	msg.AddAlternative("text/html", n.HTMLBody)
	return msg
}

func plainBody(n domain.Notification) string {
	var b strings.Builder
	b.WriteString(n.Subject)
	b.WriteString("\n\n")
	for _, r := range n.Reports {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", r.Source, r.Reason, r.Text)
	}
	return b.String()
}
