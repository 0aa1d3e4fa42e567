package extractor

import (
	"strings"

	"github.com/advancedlogic/GoOse/pkg/goose"
	"github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

type ExtractedPage struct {
	Title            string
	PlainTextContent string
	TopImage         string
}

// ExtractArticle extracts readable text from raw HTML. Readability is the
// primary extractor; trafilatura and a raw DOM walk are fallbacks for pages
// readability cannot handle.
func ExtractArticle(htmlStr string) (*ExtractedPage, error) {
	if page, err := extractWithReadability(htmlStr); err == nil && strings.TrimSpace(page.PlainTextContent) != "" {
		return page, nil
	}

	if page, err := extractWithTrafilatura(htmlStr); err == nil && strings.TrimSpace(page.PlainTextContent) != "" {
		return page, nil
	}

	text, err := extractTextNodes(htmlStr)
	if err != nil {
		return nil, err
	}
	return &ExtractedPage{PlainTextContent: text}, nil
}

func extractWithReadability(htmlStr string) (*ExtractedPage, error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}

	article, err := readability.FromDocument(doc, nil)
	if err != nil {
		return nil, err
	}
	return &ExtractedPage{
		Title:            article.Title,
		PlainTextContent: article.TextContent,
		TopImage:         article.Image,
	}, nil
}

func extractWithTrafilatura(htmlStr string) (*ExtractedPage, error) {
	opts := trafilatura.Options{
		IncludeImages: true,
	}

	article, err := trafilatura.Extract(strings.NewReader(htmlStr), opts)
	if err != nil {
		return nil, err
	}

	return &ExtractedPage{
		Title:            article.Metadata.Title,
		PlainTextContent: article.ContentText,
		TopImage:         article.Metadata.Image,
	}, nil
}

// ExtractWithGoose extracts page text and the top image using GoOse.
// Used for wire-service HTML where the metadata matters more than the body.
func ExtractWithGoose(htmlStr string) (*ExtractedPage, error) {
	g := goose.New()
	article, err := g.ExtractFromRawHTML(htmlStr, "")
	if err != nil {
		return nil, err
	}
	return &ExtractedPage{
		Title:            article.Title,
		PlainTextContent: article.CleanedText,
		TopImage:         article.TopImage,
	}, nil
}

// extractTextNodes walks the DOM and joins all text nodes.
func extractTextNodes(htmlStr string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}

	f(doc)
	return b.String(), nil
}
