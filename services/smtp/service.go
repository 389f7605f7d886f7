package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

const dialTimeout = 30 * time.Second

// SMTPNotifier mails the run summary to the configured recipients.
type SMTPNotifier struct {
	cfg *config.SmtpConfig
	log logger.Logger
}

func NewSMTPNotifier(cfg *config.SmtpConfig, log logger.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, log: log}
}

var _ interfaces.Notifier = (*SMTPNotifier)(nil)

func (s *SMTPNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.Notify")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagRunId(span, summary.RunID)

	if err := s.validate(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	message, err := s.buildMessage(summary)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.sendToServer(ctx, s.cfg.To, message); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("Sync summary sent to %v", s.cfg.To)
	return nil
}

func (s *SMTPNotifier) validate() error {
	if s.cfg.Server == "" {
		return errors.New("smtp server is required")
	}
	if !mailvalidate.ValidateEmailSyntax(s.cfg.From).IsValid {
		return fmt.Errorf("from address %q is not valid", s.cfg.From)
	}
	if len(s.cfg.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	for _, to := range s.cfg.To {
		if !mailvalidate.ValidateEmailSyntax(to).IsValid {
			return fmt.Errorf("recipient address %q is not valid", to)
		}
	}
	return nil
}

// buildMessage renders the summary into a complete MIME message.
func (s *SMTPNotifier) buildMessage(summary *models.RunSummary) ([]byte, error) {
	body, err := RenderSummary(summary)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render summary")
	}

	builder := enmime.Builder().
		From("", s.cfg.From).
		Subject(s.cfg.Subject).
		Text([]byte(body))
	for _, to := range s.cfg.To {
		builder = builder.To("", to)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build message")
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	return buf.Bytes(), nil
}

func (s *SMTPNotifier) sendToServer(ctx context.Context, recipients []string, message []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.sendToServer")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("smtp_server", s.cfg.Server, "smtp_port", s.cfg.Port, "security", s.cfg.Security.String())

	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Security == enum.EmailSecurityTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.cfg.Server})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		err = errors.Wrap(err, "failed to connect to SMTP server")
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Server)
	if err != nil {
		err = errors.Wrap(err, "failed to create SMTP client")
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if s.cfg.Security == enum.EmailSecurityStartTLS {
		if err = client.StartTLS(&tls.Config{ServerName: s.cfg.Server}); err != nil {
			err = errors.Wrap(err, "failed to start TLS")
			tracing.TraceErr(span, err)
			return err
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)
		if err = client.Auth(auth); err != nil {
			err = errors.Wrap(err, "SMTP authentication failed")
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err = client.Mail(s.cfg.From); err != nil {
		err = errors.Wrap(err, "SMTP MAIL command failed")
		tracing.TraceErr(span, err)
		return err
	}
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			err = errors.Wrapf(err, "SMTP RCPT command failed for %s", recipient)
			tracing.TraceErr(span, err)
			return err
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = errors.Wrap(err, "SMTP DATA command failed")
		tracing.TraceErr(span, err)
		return err
	}
	if _, err = dataWriter.Write(message); err != nil {
		err = errors.Wrap(err, "failed to write email data")
		tracing.TraceErr(span, err)
		return err
	}
	if err = dataWriter.Close(); err != nil {
		err = errors.Wrap(err, "failed to close data writer")
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}
