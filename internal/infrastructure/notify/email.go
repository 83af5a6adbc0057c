package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cntech/bitalert/internal/domain"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// StartTLS makes TLS mandatory; otherwise it is used when offered.
	StartTLS bool
	Timeout  time.Duration
}

// EmailNotifier sends plain-text mail over authenticated SMTP.
type EmailNotifier struct {
	cfg SMTPConfig
}

func NewEmailNotifier(cfg SMTPConfig) (*EmailNotifier, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &EmailNotifier{cfg: cfg}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, recipient string, msg domain.Message) error {
	m, err := n.buildMessage(recipient, msg)
	if err != nil {
		return err
	}

	client, err := n.client()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}

func (n *EmailNotifier) buildMessage(recipient string, msg domain.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.cfg.From, err)
	}
	if err := m.To(recipient); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEmail, recipient)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (n *EmailNotifier) client() (*mail.Client, error) {
	policy := mail.TLSOpportunistic
	if n.cfg.StartTLS {
		policy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(n.cfg.Timeout),
		mail.WithTLSPolicy(policy),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	return mail.NewClient(n.cfg.Host, opts...)
}
