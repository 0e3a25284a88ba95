package content

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"anyquiz-service/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WikiPageClient reads an article page directly and keeps the text of its
// <p> elements, without footnote markers.
type WikiPageClient struct {
	baseURL string
	client  *http.Client
}

func NewWikiPageClient(baseURL string, client *http.Client) *WikiPageClient {
	return &WikiPageClient{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client)}
}

func (c *WikiPageClient) Fetch(ctx context.Context, key domain.QuizKey) ([]string, error) {
	title := strings.ReplaceAll(strings.TrimSpace(key.Keyword), " ", "_")
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/"+url.PathEscape(title), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	body, err := do(ctx, c.client, req)
	if err != nil {
		return nil, fmt.Errorf("wiki page %q: %w", key.Keyword, err)
	}
	return ExtractParagraphs(body)
}

// ExtractParagraphs returns the text of every <p> in document order,
// skipping <sup class="reference"> elements.
func ExtractParagraphs(page []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			var sb strings.Builder
			collectText(n, &sb)
			paragraphs = append(paragraphs, sb.String())
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return paragraphs, nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Sup && hasClass(n, "reference") {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}
