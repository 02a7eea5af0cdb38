// Package mail delivers account mail either directly over SMTP or through the job queue.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/config"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/mq"
	gomail "github.com/wneessen/go-mail"
)

// Message is a plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewDirectSender returns an SMTP sender, or a LogSender when no host is configured.
func NewDirectSender(cfg config.MailConfig) Sender {
	if strings.TrimSpace(cfg.Host) == "" {
		return NewLogSender()
	}
	return &SMTPSender{cfg: cfg}
}

// SMTPSender sends each message on its own SMTP session.
type SMTPSender struct {
	cfg config.MailConfig
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}

// LogSender records that a message would be sent. The body is never logged.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: log.WithComponent("mail")}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail delivery disabled, message not sent")
	return nil
}

// QueueSender publishes messages for the worker to deliver.
type QueueSender struct {
	backend mq.Backend
	channel string
}

func NewQueueSender(backend mq.Backend, channel string) *QueueSender {
	return &QueueSender{backend: backend, channel: channel}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = s.backend.Publish(ctx, s.channel, data, map[string]string{"kind": "mail"})
	return err
}

// Consume delivers queued messages with sender until ctx is done.
// Undecodable messages are acknowledged and dropped.
func Consume(ctx context.Context, backend mq.Backend, channel string, sender Sender) error {
	logger := log.WithComponent("mail")
	return backend.Subscribe(ctx, channel, func(ctx context.Context, m mq.Message) error {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			logger.Error().Err(err).Str("message_id", m.ID).Msg("dropping malformed mail message")
			return nil
		}
		if err := sender.Send(ctx, msg); err != nil {
			logger.Warn().Err(err).Str("message_id", m.ID).Str("to", msg.To).Msg("mail delivery failed")
			return err
		}
		return nil
	})
}

// Welcome builds the message carrying a new account's initial password.
func Welcome(to, name, password string) (Message, error) {
	if strings.TrimSpace(to) == "" {
		return Message{}, errors.New("recipient is required")
	}
	body := fmt.Sprintf(
		"Hello %s,\n\nAn account has been created for you at the university library.\n\n"+
			"Email: %s\nTemporary password: %s\n\nPlease sign in and change your password.\n",
		name, to, password,
	)
	return Message{To: to, Subject: "Your library account", Body: body}, nil
}
