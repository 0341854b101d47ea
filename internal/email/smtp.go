package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/jwalitptl/telehealth-api/config"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
)

type smtpService struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

// NewSMTPService builds the gomail-backed sender. When email is disabled in
// config a no-op sender is returned so callers never branch on it.
func NewSMTPService(cfg config.EmailConfig, l *logger.Logger) Service {
	if !cfg.Enabled {
		return &noopService{logger: l}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: l,
	}
}

func (s *smtpService) SendScheduleConflictAlert(ctx context.Context, to, subject, content string) error {
	return s.SendCustom(ctx, to, subject, content)
}

func (s *smtpService) SendCustom(_ context.Context, to, subject, content string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

type noopService struct {
	logger *logger.Logger
}

func (s *noopService) SendScheduleConflictAlert(_ context.Context, to, subject, _ string) error {
	s.logger.Debug("email disabled, dropping message", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}

func (s *noopService) SendCustom(_ context.Context, to, subject, _ string) error {
	s.logger.Debug("email disabled, dropping message", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}
