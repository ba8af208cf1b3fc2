package renderer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	cssImportRe   = regexp.MustCompile(`@import\s+url\([^)]+\);`)
	cssFontFaceRe = regexp.MustCompile(`(?s)@font-face\s*\{[^}]*url\([^)]+\)[^}]*\}`)
)

// Sanitize strips scripts and remote resource references from a certificate
// template. Parse failures return the input unchanged so a broken template
// still flows through the pipeline and fails visibly at render time.
func (s *Service) Sanitize(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		s.logger.Error(err, "failed to parse template for sanitization")
		return html
	}

	doc.Find("script").Remove()

	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		css := sel.Text()
		if strings.Contains(css, "url(") || strings.Contains(css, "@import") {
			sel.Remove()
		}
	})

	doc.Find("link").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if isExternal(href) {
			sel.Remove()
		}
	})

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if isExternal(src) {
			sel.Remove()
		}
	})

	out, err := doc.Html()
	if err != nil {
		s.logger.Error(err, "failed to serialize sanitized template")
		return html
	}

	out = cssImportRe.ReplaceAllString(out, "")
	out = cssFontFaceRe.ReplaceAllString(out, "")

	return out
}

func isExternal(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
