package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
)

const dialTimeout = 10 * time.Second

// SMTPTransport delivers emails through an SMTP relay
type SMTPTransport struct {
	addr string
	host string
	from mail.Address
	auth smtp.Auth
	now  func() time.Time
}

func NewSMTPTransport(addr, from, username, password string) (*SMTPTransport, error) {
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse sender address: %w", err)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse smtp address: %w", err)
	}

	t := &SMTPTransport{addr: addr, host: host, from: *sender, now: time.Now}
	if username != "" {
		t.auth = smtp.PlainAuth("", username, password, host)
	}
	return t, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg models.EmailMessage) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return outbox.Permanent(fmt.Errorf("invalid recipient: %w", err))
	}
	body, err := t.Compose(msg)
	if err != nil {
		return outbox.Permanent(err)
	}

	if err := t.deliver(ctx, to.Address, body); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return outbox.Permanent(fmt.Errorf("smtp rejected message: %w", err))
		}
		if ctx.Err() != nil {
			return fmt.Errorf("smtp send: %w", ctx.Err())
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// deliver runs one SMTP session bounded by ctx. The connection carries the context
// deadline and is closed on cancellation, so no session outlives the attempt.
func (t *SMTPTransport) deliver(ctx context.Context, to string, body []byte) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return err
		}
	}
	if t.auth != nil {
		if err := c.Auth(t.auth); err != nil {
			return err
		}
	}
	if err := c.Mail(t.from.Address); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// Compose builds a multipart/alternative message with text and HTML parts
func (t *SMTPTransport) Compose(msg models.EmailMessage) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	headers := []string{
		"From: " + t.from.String(),
		"To: " + msg.To,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + t.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		fmt.Sprintf("Message-ID: <%s@slotbook>", msg.EntryID),
		"Content-Type: multipart/alternative; boundary=" + w.Boundary(),
	}
	if msg.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+msg.ReplyTo)
	}
	for _, h := range headers {
		buf.WriteString(h + "\r\n")
	}
	buf.WriteString("\r\n")

	for _, part := range []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, fmt.Errorf("compose part: %w", err)
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("compose part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	return buf.Bytes(), nil
}
