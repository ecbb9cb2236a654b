// Package smtpingest receives email over SMTP, classifies it, and relays it
// onward with classification headers prepended. It is designed to sit in
// front of a ticketing mailbox as a content filter.
package smtpingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// Headers names the message headers added to relayed email.
type Headers struct {
	RequestType     string
	SubRequestType  string
	Confidence      string
	SupportGroup    string
	Duplicate       string
	DuplicateReason string
}

// Ingest is an SMTP server that classifies and relays incoming mail.
type Ingest struct {
	service    *core.ClassifierService
	logger     *zap.Logger
	listenAddr string
	relayAddr  string
	domain     string
	headers    Headers
	server     *smtp.Server
}

// NewIngest creates a new SMTP ingestion server. relayAddr may be empty, in
// which case messages are classified but not forwarded.
func NewIngest(
	service *core.ClassifierService,
	listenAddr string,
	relayAddr string,
	domain string,
	headers Headers,
	logger *zap.Logger,
) *Ingest {
	return &Ingest{
		service:    service,
		logger:     logger,
		listenAddr: listenAddr,
		relayAddr:  relayAddr,
		domain:     domain,
		headers:    headers,
	}
}

// Start starts the SMTP server in a background goroutine.
func (f *Ingest) Start() error {
	f.server = smtp.NewServer(&smtpBackend{ingest: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = f.domain
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP ingestion starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP server.
func (f *Ingest) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// relay sends the annotated email onward using go-smtp.
func (f *Ingest) relay(sender string, recipients []string, emailData []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", f.relayAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	ingest *Ingest
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		ingest:     b.ingest,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	ingest     *Ingest
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed here)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data classifies the message and relays it with classification headers.
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.ingest.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.ingest.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	email, err := emailFromMessage(msg, s.sender, s.recipients)
	if err != nil {
		s.ingest.logger.Error("Failed to extract email content", zap.Error(err))
		return err
	}
	email.Source = "smtp"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	result, processErr := s.ingest.service.ProcessEmail(ctx, email)
	if processErr != nil {
		s.ingest.logger.Error("Failed to classify email",
			zap.Error(processErr),
			zap.String("sender", email.Sender))
		errMsg := processErr.Error()
		result = &core.ClassificationResult{Error: &errMsg}
	}

	annotated := s.annotate(msg, rawData, result, processErr)

	if s.ingest.relayAddr != "" {
		if err := s.ingest.relay(s.sender, s.recipients, annotated); err != nil {
			s.ingest.logger.Error("Failed to relay email",
				zap.Error(err),
				zap.String("sender", email.Sender))
			return err
		}
	}

	s.logOutcome(email, result)
	return nil
}

func (s *smtpSession) annotate(msg *mail.Message, rawData []byte, result *core.ClassificationResult, processErr error) []byte {
	h := s.ingest.headers
	var out bytes.Buffer

	if primary := result.Primary(); primary != nil {
		fmt.Fprintf(&out, "%s: %s\r\n", h.RequestType, primary.RequestType)
		fmt.Fprintf(&out, "%s: %s\r\n", h.SubRequestType, primary.SubRequestType)
		fmt.Fprintf(&out, "%s: %.4f\r\n", h.Confidence, primary.Confidence)
		fmt.Fprintf(&out, "%s: %s\r\n", h.SupportGroup, result.SupportGroup)
	}
	fmt.Fprintf(&out, "%s: %t\r\n", h.Duplicate, result.IsDuplicate)
	if result.DuplicateReason != nil {
		fmt.Fprintf(&out, "%s: %s\r\n", h.DuplicateReason, *result.DuplicateReason)
	}
	if processErr != nil {
		fmt.Fprintf(&out, "X-Classification-Error: %s\r\n", processErr.Error())
	}

	for key, values := range msg.Header {
		for _, value := range values {
			fmt.Fprintf(&out, "%s: %s\r\n", key, value)
		}
	}
	out.WriteString("\r\n")

	// Preserve the original body bytes, MIME parts included
	if idx := bytes.Index(rawData, []byte("\r\n\r\n")); idx != -1 {
		out.Write(rawData[idx+4:])
	} else if idx := bytes.Index(rawData, []byte("\n\n")); idx != -1 {
		out.Write(rawData[idx+2:])
	}

	return out.Bytes()
}

func (s *smtpSession) logOutcome(email *core.InboundEmail, result *core.ClassificationResult) {
	senderDomain := "unknown"
	if parts := strings.Split(email.Sender, "@"); len(parts) == 2 {
		senderDomain = parts[1]
	}

	requestType := ""
	if primary := result.Primary(); primary != nil {
		requestType = primary.RequestType
	}

	s.ingest.logger.Info("Processed email",
		zap.String("from", email.Sender),
		zap.String("sender_domain", senderDomain),
		zap.String("request_type", requestType),
		zap.Bool("is_duplicate", result.IsDuplicate))
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
