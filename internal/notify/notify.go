package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"gopkg.in/gomail.v2"
)

// Notifier отправляет письмо. Ошибки отправки не должны влиять на состояние платежей.
type Notifier interface {
	Send(ctx context.Context, subject, to, htmlBody string) error
}

// mailDialer - часть gomail.Dialer, нужная для отправки.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier отправляет письма через SMTP.
type SMTPNotifier struct {
	dialer mailDialer
	from   string
	log    *logger.Logger
}

// NewSMTPNotifier создает SMTP-отправителя.
func NewSMTPNotifier(cfg config.SMTPConfig, log *logger.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    log,
	}
}

// New выбирает SMTP, если он настроен, иначе пишет письма в лог.
func New(cfg config.SMTPConfig, log *logger.Logger) Notifier {
	if cfg.Enabled() {
		return NewSMTPNotifier(cfg, log)
	}
	log.Warnw("SMTP is not configured, notifications will only be logged")
	return NewLogNotifier(log)
}

func (n *SMTPNotifier) Send(ctx context.Context, subject, to, htmlBody string) error {
	if to == "" {
		return errors.New("notify: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := n.dialer.DialAndSend(m); err != nil {
		n.log.Errorw("Failed to send email", "error", err, "to", to, "subject", subject)
		return fmt.Errorf("notify: send email: %w", err)
	}
	n.log.Infow("Email sent", "to", to, "subject", subject)
	return nil
}

// LogNotifier только логирует письма.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier создает отправителя-заглушку.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, subject, to, _ string) error {
	n.log.Infow("Email notification (not sent, SMTP disabled)", "to", to, "subject", subject)
	return nil
}

// ReceiptEmail - письмо об успешной оплате.
func ReceiptEmail(amount float64, currency, receiptURL string) (subject, body string) {
	subject = "Payment receipt"
	body = fmt.Sprintf("<p>Your payment of %.2f %s was successful.</p>", amount, html.EscapeString(currency))
	if receiptURL != "" {
		body += fmt.Sprintf(`<p><a href="%s">View receipt</a></p>`, html.EscapeString(receiptURL))
	}
	return subject, body
}

// InvoiceFallbackEmail отправляется, если Stripe не смог отправить счёт.
func InvoiceFallbackEmail(offerTitle string, amount float64, currency, invoiceURL string) (subject, body string) {
	subject = "Your subscription is active"
	body = fmt.Sprintf("<p>Thank you for subscribing to <b>%s</b>. Amount charged: %.2f %s.</p>",
		html.EscapeString(offerTitle), amount, html.EscapeString(currency))
	if invoiceURL != "" {
		body += fmt.Sprintf(`<p><a href="%s">View invoice</a></p>`, html.EscapeString(invoiceURL))
	}
	return subject, body
}

// RenewalReminderEmail - напоминание о предстоящем списании.
func RenewalReminderEmail(amountDue float64, currency string, due *time.Time) (subject, body string) {
	subject = "Upcoming subscription renewal"
	when := "soon"
	if due != nil {
		when = "on " + due.Format("2006-01-02")
	}
	body = fmt.Sprintf("<p>Your subscription renews %s. Amount due: %.2f %s.</p>",
		when, amountDue, html.EscapeString(currency))
	return subject, body
}

// PaymentMethodSavedEmail подтверждает сохранение карты через Checkout.
func PaymentMethodSavedEmail(offerTitle string) (subject, body string) {
	subject = "Payment method saved"
	body = "<p>Your card has been saved."
	if offerTitle != "" {
		body += fmt.Sprintf(" You can now subscribe to <b>%s</b>.", html.EscapeString(offerTitle))
	}
	body += "</p>"
	return subject, body
}
