package renderer

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pdf/fpdf"
)

type convertRequest struct {
	HTML          string `json:"html"`
	MarginTop     string `json:"margin_top"`
	MarginBottom  string `json:"margin_bottom"`
	MarginRight   string `json:"margin_right"`
	MarginLeft    string `json:"margin_left"`
	NoBackgrounds bool   `json:"no_backgrounds"`
}

type convertResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL      string `json:"url"`
		FileSize int64  `json:"file_size"`
	} `json:"data"`
	Error string `json:"error"`
}

// GeneratePDF converts rendered certificate HTML to PDF bytes. The local
// engine is tried first when enabled, then the external conversion API over
// each configured credential in order. An error here is not terminal for the
// pipeline; the caller degrades to HTML delivery.
func (s *Service) GeneratePDF(ctx context.Context, html string) ([]byte, error) {
	if s.config.LocalPDF {
		pdf, err := s.generateLocalPDF(html)
		if err == nil {
			return pdf, nil
		}
		s.logger.Error(err, "local PDF engine failed, trying conversion API")
	}

	if s.config.PDFAPIURL == "" || len(s.config.APITokens) == 0 {
		return nil, fmt.Errorf("no PDF conversion backend available")
	}

	payload := convertRequest{
		HTML:          html,
		MarginTop:     "1cm",
		MarginBottom:  "1cm",
		MarginRight:   "1cm",
		MarginLeft:    "1cm",
		NoBackgrounds: true,
	}

	var lastErr error
	for i, token := range s.config.APITokens {
		s.metrics.PDFTokenRetries.WithLabelValues(strconv.Itoa(i)).Inc()

		var result convertResponse
		resp, err := s.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetBody(payload).
			SetResult(&result).
			ForceContentType("application/json").
			Post(s.config.PDFAPIURL)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() != 200 {
			lastErr = fmt.Errorf("conversion API returned status %d: %s", resp.StatusCode(), resp.String())
			continue
		}
		if !result.Success {
			lastErr = fmt.Errorf("conversion API returned success=false: %s", result.Error)
			continue
		}

		pdf, err := s.downloadPDF(ctx, result.Data.URL)
		if err != nil {
			lastErr = err
			continue
		}

		s.logger.Info("PDF generated via conversion API", "token_index", i, "size", len(pdf))
		return pdf, nil
	}

	return nil, fmt.Errorf("all PDF conversion credentials failed: %w", lastErr)
}

func (s *Service) downloadPDF(ctx context.Context, url string) ([]byte, error) {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download converted PDF: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("PDF download returned status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("PDF download returned empty body")
	}
	return body, nil
}

// generateLocalPDF lays the certificate text out on an A4 page. It does not
// honor the template's CSS; it exists for deployments that cannot reach the
// conversion API at all.
func (s *Service) generateLocalPDF(html string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate HTML: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	doc.Find("h1, h2, h3, p, div, span, td").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(sel) {
		case "h1":
			pdf.SetFont("Arial", "B", 22)
		case "h2":
			pdf.SetFont("Arial", "B", 18)
		case "h3":
			pdf.SetFont("Arial", "B", 14)
		default:
			pdf.SetFont("Arial", "", 12)
		}
		pdf.MultiCell(0, 9, tr(text), "", "C", false)
		pdf.Ln(3)
	})

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF output: %w", err)
	}
	return buf.Bytes(), nil
}
