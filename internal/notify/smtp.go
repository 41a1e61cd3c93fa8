package notify

import (
	"context"
	"log/slog"

	"library-api/internal/config"
	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/pkg/apperrors"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPDispatcher sends one mail per batch. Recipients go in Bcc so customers never see each other.
type SMTPDispatcher struct {
	sender mailSender
	from   string
	logger *slog.Logger
}

var _ Dispatcher = (*SMTPDispatcher)(nil)

func NewSMTPDispatcher(cfg config.MailConfig, logger *slog.Logger) *SMTPDispatcher {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return newSMTPDispatcher(dialer, cfg.DefaultSender, logger)
}

func newSMTPDispatcher(sender mailSender, from string, logger *slog.Logger) *SMTPDispatcher {
	return &SMTPDispatcher{
		sender: sender,
		from:   from,
		logger: logger.With("component", "SMTPDispatcher"),
	}
}

func (d *SMTPDispatcher) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		monitoring.RecordNotification(TransportSMTP, "error")
		return apperrors.WrapTransportError(err, TransportSMTP)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", d.from)
	m.SetHeader("Bcc", recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := d.sender.DialAndSend(m); err != nil {
		d.logger.ErrorContext(ctx, "Failed to send mail", slog.Int("recipients", len(recipients)), slog.Any("error", err))
		monitoring.RecordNotification(TransportSMTP, "error")
		return apperrors.WrapTransportError(err, TransportSMTP)
	}

	d.logger.InfoContext(ctx, "Mail sent", slog.Int("recipients", len(recipients)), slog.String("subject", subject))
	monitoring.RecordNotification(TransportSMTP, "success")
	return nil
}
