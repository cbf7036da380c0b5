package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Service sends outbound email through SendGrid. It implements
// domain.Mailer; callers never see transport details.
type Service struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       logger.Logger
}

// NewService creates a SendGrid-backed mailer. With an empty API key the
// mailer logs messages instead of sending, which keeps local development
// working without credentials.
func NewService(apiKey, fromEmail, fromName string, log logger.Logger) *Service {
	s := &Service{fromEmail: fromEmail, fromName: fromName, log: log}
	if apiKey != "" {
		s.client = sendgrid.NewSendClient(apiKey)
	}
	return s
}

// Send delivers one message
func (s *Service) Send(ctx context.Context, msg domain.OutboundEmail) error {
	if s.client == nil {
		s.log.Info("📧 email transport disabled, logging instead",
			"to", msg.To,
			"subject", msg.Subject,
			"attachment", msg.Attachment,
			"download_url", msg.DownloadURL)
		return nil
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	for _, cc := range msg.CC {
		p.AddCCs(mail.NewEmail("", cc))
	}
	for _, bcc := range msg.BCC {
		p.AddBCCs(mail.NewEmail("", bcc))
	}
	m.AddPersonalizations(p)

	body := msg.Body
	if msg.DownloadURL != "" {
		body = fmt.Sprintf("%s\n\nDownload your export here (link expires automatically):\n%s", body, msg.DownloadURL)
	}
	m.AddContent(mail.NewContent("text/plain", body))

	if msg.AttachedAt != "" {
		attachment, err := buildAttachment(msg.Attachment, msg.AttachedAt)
		if err != nil {
			return err
		}
		m.AddAttachment(attachment)
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	s.log.Info("📧 email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

// buildAttachment reads and base64-encodes the export file
func buildAttachment(filename, path string) (*mail.Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewDistributionChannelError("email", fmt.Errorf("failed to read attachment: %w", err))
	}

	attachment := mail.NewAttachment()
	attachment.SetContent(base64.StdEncoding.EncodeToString(content))
	attachment.SetFilename(filename)
	attachment.SetType(contentType(filename))
	attachment.SetDisposition("attachment")
	return attachment, nil
}

func contentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
