package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"invoicesync/internal/config"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// ErrMailDisabled is returned when no SMTP host is configured.
var ErrMailDisabled = errors.New("smtp is not configured")

// Message is a plain-text e-mail with optional file attachments.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type Attachment struct {
	Path string
	Name string
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer delivers messages through one SMTP relay.
type Mailer struct {
	sender mailSender
	from   string
	logger *zerolog.Logger
}

func NewMailer(cfg config.SMTPConfig, logger *zerolog.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, ErrMailDisabled
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &Mailer{sender: client, from: cfg.From, logger: logger}, nil
}

func (m *Mailer) build(msg Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, a := range msg.Attachments {
		name := a.Name
		if name == "" {
			name = filepath.Base(a.Path)
		}
		out.AttachFile(a.Path, mail.WithFileName(name))
	}
	return out, nil
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	out, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	m.logger.Debug().Str("to", msg.To).Str("subject", msg.Subject).Int("attachments", len(msg.Attachments)).Msg("mail sent")
	return nil
}

// AdminMail routes alerts to the administrator mailbox.
type AdminMail struct {
	mailer *Mailer
	to     string
}

func NewAdminMail(mailer *Mailer, to string) *AdminMail {
	return &AdminMail{mailer: mailer, to: to}
}

func (a *AdminMail) Notify(ctx context.Context, subject, body string) error {
	return a.mailer.Send(ctx, Message{To: a.to, Subject: subject, Body: body})
}
