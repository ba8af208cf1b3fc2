package email

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"

	"github.com/decet2025-sketch/cert-api/pkg/logger"
)

// CertificateRequest carries one delivery. Exactly one of PDF or HTMLBody
// is set; the worker decides which based on the render result.
type CertificateRequest struct {
	To             string
	LearnerName    string
	LearnerEmail   string
	CourseName     string
	Organization   string
	CompletionDate string
	Subject        string
	PDF            []byte
	PDFFilename    string
	HTMLBody       string
}

type Service interface {
	SendCertificate(ctx context.Context, req CertificateRequest) (messageID string, err error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

type smtpService struct {
	config SMTPConfig
	logger *logger.Logger
}

func NewSMTPService(config SMTPConfig, log *logger.Logger) Service {
	return &smtpService{config: config, logger: log}
}

func (s *smtpService) SendCertificate(ctx context.Context, req CertificateRequest) (string, error) {
	messageID := fmt.Sprintf("<%s@cert-api>", uuid.New().String())

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.config.From, s.config.FromName)
	m.SetHeader("To", req.To)
	m.SetHeader("Subject", req.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", s.buildBody(req))

	if len(req.PDF) > 0 {
		filename := req.PDFFilename
		if filename == "" {
			filename = "certificate.pdf"
		}
		pdf := req.PDF
		m.Attach(filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(pdf)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
		)
	}

	d := gomail.NewDialer(s.config.Host, s.config.Port, s.config.User, s.config.Password)

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to send certificate email: %w", err)
		}
	case <-ctx.Done():
		return "", fmt.Errorf("certificate email send canceled: %w", ctx.Err())
	case <-time.After(2 * time.Minute):
		return "", fmt.Errorf("certificate email send timed out")
	}

	s.logger.Info("certificate email sent", "to", req.To, "course", req.CourseName, "message_id", messageID)
	return messageID, nil
}

func (s *smtpService) buildBody(req CertificateRequest) string {
	var b strings.Builder
	b.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	fmt.Fprintf(&b, "<p>Hello,</p>")
	fmt.Fprintf(&b, "<p><strong>%s</strong> (%s) has completed the course <strong>%s</strong>", req.LearnerName, req.LearnerEmail, req.CourseName)
	if req.CompletionDate != "" {
		fmt.Fprintf(&b, " on %s", req.CompletionDate)
	}
	b.WriteString(".</p>")
	if len(req.PDF) > 0 {
		b.WriteString("<p>The certificate is attached as a PDF.</p>")
	} else if req.HTMLBody != "" {
		b.WriteString("<p>The certificate could not be rendered as a PDF; it is included below.</p><hr>")
		b.WriteString(req.HTMLBody)
		b.WriteString("<hr>")
	}
	if req.Organization != "" {
		fmt.Fprintf(&b, "<p>Organization: %s</p>", req.Organization)
	}
	b.WriteString("</body></html>")
	return b.String()
}
