package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta holds og:/meta tags extracted from a page head.
type PageMeta struct {
	Title        string
	Description  string
	Image        string
	CanonicalURL string
}

// ExtractMeta reads Open Graph and standard meta tags from raw HTML.
func ExtractMeta(htmlStr string) (*PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}

	meta := &PageMeta{}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		switch strings.ToLower(prop) {
		case "og:title":
			if meta.Title == "" {
				meta.Title = content
			}
		case "og:description":
			if meta.Description == "" {
				meta.Description = content
			}
		case "og:image", "og:image:url", "og:image:secure_url":
			if meta.Image == "" {
				meta.Image = content
			}
		}
		switch strings.ToLower(name) {
		case "description":
			if meta.Description == "" {
				meta.Description = content
			}
		case "twitter:image", "twitter:image:src":
			if meta.Image == "" {
				meta.Image = content
			}
		}
	})

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		meta.CanonicalURL = href
	}

	return meta, nil
}

// FlattenEmailHTML converts an HTML email body into plain text, dropping
// quoted signatures and style blocks.
func FlattenEmailHTML(htmlStr string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, blockquote.gmail_quote, div.signature").Remove()

	const blocks = "p, div, li, h1, h2, h3, td"

	var lines []string
	doc.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		// Only leaf blocks emit text: a wrapper div around paragraphs would
		// repeat every paragraph it contains.
		if s.Find(blocks).Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			lines = append(lines, text)
		}
	})

	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}
