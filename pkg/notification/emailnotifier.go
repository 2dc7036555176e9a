package notification

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// SMTPConfig configures the email notifier.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" env-default:"localhost"`
	Port     int    `env:"SMTP_PORT" env-default:"1025"`
	TLS      bool   `env:"SMTP_TLS" env-default:"false"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" env-default:"no-reply@simple-mfa.local"`
}

// EmailNotifier delivers passcodes over SMTP.
type EmailNotifier struct {
	config SMTPConfig
	client *mail.Client
}

// NewEmailNotifier creates an SMTP-backed notifier.
func NewEmailNotifier(config SMTPConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTimeout(30),
	}

	if config.Username != "" && config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}

	if !config.TLS {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
			mail.WithTLSPolicy(mail.NoTLS),
		)
	} else {
		opts = append(opts,
			mail.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	}

	slog.Info("Creating mail client", "host", config.Host, "port", config.Port)
	client, err := mail.NewClient(config.Host, opts...)
	if err != nil {
		slog.Error("Failed to create mail client", "err", err)
		return nil, err
	}

	return &EmailNotifier{config: config, client: client}, nil
}

// Send delivers one email.
func (e *EmailNotifier) Send(notification Data) error {
	if notification.To == "" {
		return fmt.Errorf("email notification requires 'To' address")
	}

	msg := mail.NewMsg()
	if err := msg.From(e.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(notification.To); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}

	subject := notification.Subject
	if subject == "" {
		subject = "Your verification code"
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, notification.Body)

	if err := e.client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	slog.Info("Email sent", "to", notification.To, "subject", subject)
	return nil
}
