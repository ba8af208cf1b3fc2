package renderer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/decet2025-sketch/cert-api/internal/model"
	"github.com/decet2025-sketch/cert-api/pkg/logger"
	"github.com/decet2025-sketch/cert-api/pkg/metrics"
)

// Result is what one render call produces. Exactly one of PDF or
// HTMLFallback is meaningful for delivery: either PDF bytes exist, or the
// HTML body stands in for them.
type Result struct {
	PDF          []byte
	HTML         string
	Filename     string
	HTMLFallback bool
}

type Config struct {
	LocalPDF   bool
	PDFAPIURL  string
	PDFTimeout time.Duration
	APITokens  []string
}

type Service struct {
	config  Config
	client  *resty.Client
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(config Config, log *logger.Logger, m *metrics.Metrics) *Service {
	client := resty.New().
		SetTimeout(config.PDFTimeout).
		SetHeader("Content-Type", "application/json")

	return &Service{
		config:  config,
		client:  client,
		logger:  log,
		metrics: m,
	}
}

// Templates reach us in two placeholder conventions and both must work:
// brace style ({learnerName}) from the course upload surface and tag style
// ({{learner_name}}, {{ learner_name }}) from older templates.
var tagPlaceholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

func (s *Service) Render(template string, ctx model.CertificateContext) string {
	// Fragment detection has to happen on the raw template: sanitization
	// parses through goquery, which re-serializes every input as a full
	// html/head/body document.
	sanitized := s.Sanitize(ensureDocument(template))

	values := map[string]string{
		"learnerName":      ctx.LearnerName,
		"courseName":       ctx.CourseName,
		"completionDate":   ctx.CompletionDate,
		"organizationName": ctx.Organization,
		"learnerEmail":     ctx.LearnerEmail,
		"learner_name":     ctx.LearnerName,
		"course_name":      ctx.CourseName,
		"completion_date":  ctx.CompletionDate,
		"organization":     ctx.Organization,
		"learner_email":    ctx.LearnerEmail,
	}
	for k, v := range ctx.CustomFields {
		values[k] = v
	}

	rendered := tagPlaceholderRe.ReplaceAllStringFunc(sanitized, func(match string) string {
		name := tagPlaceholderRe.FindStringSubmatch(match)[1]
		return values[name]
	})

	for name, value := range values {
		rendered = strings.ReplaceAll(rendered, "{"+name+"}", value)
	}

	return rendered
}

// RenderCertificate runs the full chain: sanitize and substitute, then
// attempt PDF conversion, degrading to the HTML body when conversion is
// unavailable. It only errors when not even HTML could be produced.
func (s *Service) RenderCertificate(ctx context.Context, template string, certCtx model.CertificateContext) (*Result, error) {
	html := s.Render(template, certCtx)
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("rendered certificate is empty")
	}

	filename := certificateFilename(certCtx)

	pdf, err := s.GeneratePDF(ctx, html)
	if err != nil {
		s.logger.Error(err, "PDF generation failed, falling back to HTML delivery", "course", certCtx.CourseName, "email", certCtx.LearnerEmail)
		s.metrics.PDFFallbacks.Inc()
		return &Result{HTML: html, Filename: filename, HTMLFallback: true}, nil
	}

	s.metrics.PDFGenerated.Inc()
	return &Result{PDF: pdf, HTML: html, Filename: filename}, nil
}

func certificateFilename(ctx model.CertificateContext) string {
	name := strings.TrimSpace(ctx.LearnerName)
	if name == "" {
		name = ctx.LearnerEmail
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return fmt.Sprintf("certificate_%s.pdf", name)
}

func ensureDocument(html string) string {
	if strings.Contains(strings.ToLower(html), "<html") {
		return html
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Certificate</title>
<style>
body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
.certificate { max-width: 800px; margin: 0 auto; background-color: white; padding: 40px; border-radius: 10px; box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1); }
</style>
</head>
<body>
<div class="certificate">
%s
</div>
</body>
</html>`, html)
}
