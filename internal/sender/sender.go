// Package sender composes document mails and delivers them over SMTP.
package sender

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// sessionTimeout bounds a whole SMTP session so a stalled server cannot
// wedge the poll loop.
const sessionTimeout = 30 * time.Second

// ErrTransport marks failures of the SMTP session itself, before any message
// was attempted. Every further send in the same cycle would fail the same
// way, so callers may stop early on it.
var ErrTransport = errors.New("smtp transport")

// Attachment is a file to include in an outgoing message.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Sender delivers messages through a single SMTP account. The login address
// doubles as the From address.
type Sender struct {
	host     string
	port     int
	security string
	username string
	password string
	logger   *slog.Logger
}

// New creates a new SMTP sender. security is "starttls" or "ssl".
func New(host string, port int, security, username, password string, logger *slog.Logger) *Sender {
	return &Sender{
		host:     host,
		port:     port,
		security: security,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Send composes a message carrying the attachment and delivers it to the
// recipient. documentID tags the mail with the source document for tracing;
// 0 omits the tag. Send returns only after the server has accepted the
// message.
func (s *Sender) Send(to, subject, body string, att Attachment, documentID int64) error {
	msg, err := s.buildMessage(to, subject, body, att, documentID)
	if err != nil {
		return err
	}
	return s.deliver(to, msg)
}

// buildMessage renders a multipart message with a text body and one
// base64-encoded attachment.
func (s *Sender) buildMessage(to, subject, body string, att Attachment, documentID int64) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: s.username}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetMsgIDList("Message-Id", []string{uuid.NewString() + "@" + s.host})
	h.Set("X-Mailer", "paperless-mailer")
	if documentID > 0 {
		h.Set("X-Paperless-Document-Id", fmt.Sprintf("%d", documentID))
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	if _, err := io.WriteString(tw, body); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close text part: %w", err)
	}

	var ah mail.AttachmentHeader
	ah.SetFilename(att.Name)
	ah.SetContentType(att.ContentType, nil)
	ah.Set("Content-Transfer-Encoding", "base64")
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	if _, err := aw.Write(att.Content); err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("close attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// deliver pushes the rendered message through one bounded SMTP session.
func (s *Sender) deliver(to string, message []byte) error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	dialer := &net.Dialer{Timeout: sessionTimeout}

	var conn net.Conn
	var err error
	if s.security == "ssl" {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.host})
		if err != nil {
			return fmt.Errorf("%w: tls dial %s: %w", ErrTransport, addr, err)
		}
	} else {
		conn, err = dialer.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
		}
	}

	// One deadline covers the whole session, greeting through Quit.
	if err := conn.SetDeadline(time.Now().Add(sessionTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: greeting from %s: %w", ErrTransport, addr, err)
	}
	defer client.Close()

	if s.security != "ssl" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
				return fmt.Errorf("%w: starttls: %w", ErrTransport, err)
			}
		} else {
			s.logger.Warn("server does not offer STARTTLS, continuing without TLS", "server", addr)
		}
	}

	if s.username != "" && s.password != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: auth: %w", ErrTransport, err)
		}
	}

	if err := client.Mail(s.username); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}
