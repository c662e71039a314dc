package notification

import (
	"context"
	"fmt"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/wneessen/go-mail"
)

// SMTPNotifier delivers confirmations over SMTP.
type SMTPNotifier struct {
	client   *mail.Client
	from     string
	fromName string
	renderer *Renderer
	log      *logger.Logger
}

func NewSMTPNotifier(cfg config.EmailConfig, renderer *Renderer, log *logger.Logger) (*SMTPNotifier, error) {
	c, err := mail.NewClient(
		cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUsername),
		mail.WithPassword(cfg.SMTPPassword),
	)
	if err != nil {
		log.Error("EMAIL", fmt.Sprintf("Could not initialize smtp client: %v", err))
		return nil, err
	}
	return &SMTPNotifier{
		client:   c,
		from:     cfg.From,
		fromName: cfg.FromName,
		renderer: renderer,
		log:      log,
	}, nil
}

func (n *SMTPNotifier) SendConfirmation(ctx context.Context, data models.ConfirmationData) error {
	doc, err := n.renderer.Render(data)
	if err != nil {
		return err
	}
	msg, err := n.message(doc)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		n.log.Error("EMAIL", fmt.Sprintf("Failed to send confirmation %s: %v", data.BookingReference, err))
		return err
	}
	n.log.Info("EMAIL", fmt.Sprintf("Confirmation %s sent to %s", data.BookingReference, doc.To))
	return nil
}

func (n *SMTPNotifier) message(doc *Document) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(n.fromName, n.from); err != nil {
		return nil, fmt.Errorf("failed to set From address: %w", err)
	}
	if err := msg.To(doc.To); err != nil {
		return nil, fmt.Errorf("failed to set To address: %w", err)
	}
	msg.Subject(doc.Subject)
	msg.SetBodyString(mail.TypeTextHTML, doc.HTML)
	msg.AddAlternativeString(mail.TypeTextPlain, doc.Text)
	return msg, nil
}

// LogNotifier renders confirmations and only logs them. It is used when no
// SMTP server is configured.
type LogNotifier struct {
	renderer *Renderer
	log      *logger.Logger
}

func NewLogNotifier(renderer *Renderer, log *logger.Logger) *LogNotifier {
	return &LogNotifier{renderer: renderer, log: log}
}

func (n *LogNotifier) SendConfirmation(_ context.Context, data models.ConfirmationData) error {
	doc, err := n.renderer.Render(data)
	if err != nil {
		return err
	}
	n.log.Info("EMAIL", fmt.Sprintf("SMTP disabled, confirmation %s for %s rendered (%d bytes)", data.BookingReference, doc.To, len(doc.HTML)))
	return nil
}
