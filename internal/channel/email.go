package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// EmailConfig holds SMTP transport settings.
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
}

// Email sends messages over SMTP with STARTTLS. Connection and IO failures
// come back transient; server rejections (5xx) come back permanent so the
// retry loop does not hammer a mailbox that will never accept.
type Email struct {
	cfg EmailConfig
}

// NewEmail creates the SMTP channel.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.Username
	}
	return &Email{cfg: cfg}
}

func (e *Email) Name() model.Channel { return model.ChannelEmail }

func (e *Email) Send(ctx context.Context, lead *model.Lead, msg *model.Message) error {
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "channel: smtp dial"), 0)
	}

	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return classifySMTP(eris.Wrap(err, "channel: smtp handshake"), err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
		return classifySMTP(eris.Wrap(err, "channel: starttls"), err)
	}
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return classifySMTP(eris.Wrap(err, "channel: smtp auth"), err)
	}
	if err := client.Mail(e.cfg.FromEmail); err != nil {
		return classifySMTP(eris.Wrap(err, "channel: mail from"), err)
	}
	if err := client.Rcpt(lead.Email); err != nil {
		return classifySMTP(eris.Wrapf(err, "channel: rcpt %s", lead.Email), err)
	}

	w, err := client.Data()
	if err != nil {
		return classifySMTP(eris.Wrap(err, "channel: data"), err)
	}
	if _, err := w.Write(buildMIME(e.cfg.FromEmail, lead.Email, msg.Subject, msg.Body)); err != nil {
		w.Close()
		return resilience.NewTransientError(eris.Wrap(err, "channel: write body"), 0)
	}
	if err := w.Close(); err != nil {
		return classifySMTP(eris.Wrap(err, "channel: close data"), err)
	}
	if err := client.Quit(); err != nil {
		// Message already accepted; a failed QUIT is not a delivery failure.
		zap.L().Debug("smtp quit failed", zap.Error(err))
	}

	zap.L().Info("email sent",
		zap.String("lead_id", lead.ID),
		zap.String("to", lead.Email),
	)
	return nil
}

// classifySMTP wraps an SMTP failure as transient or permanent based on its
// reply code: 4xx asks the client to retry later, 5xx is a final rejection.
func classifySMTP(wrapped, raw error) error {
	var tpErr *textproto.Error
	if errors.As(raw, &tpErr) {
		if resilience.IsTransientSMTPCode(tpErr.Code) {
			return resilience.NewTransientError(wrapped, 0)
		}
		return resilience.NewPermanentError(wrapped)
	}
	// No reply code: a transport-level failure, safe to retry.
	return resilience.NewTransientError(wrapped, 0)
}

func buildMIME(from, to, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
