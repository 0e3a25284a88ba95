package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"anyquiz-service/internal/domain"
)

// Separators Solr's extract handler leaves between pages, by content type.
const (
	htmlPageSeparator    = "\n \n postPage"
	pdfPageSeparator     = "\n \n page"
	defaultPageSeparator = "\n \n "
)

// SolrClient indexes the document at the keyword URL through Solr's extract
// handler and reads the extracted body back.
type SolrClient struct {
	baseURL string
	client  *http.Client
}

func NewSolrClient(baseURL string, client *http.Client) *SolrClient {
	return &SolrClient{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(client)}
}

type solrSelectResponse struct {
	Response struct {
		Docs []solrDoc `json:"docs"`
	} `json:"response"`
}

type solrDoc struct {
	ContentType flexibleStrings `json:"attr_stream_content_type"`
	Body        flexibleStrings `json:"attr_body"`
}

// flexibleStrings decodes a Solr field stored either single or multi valued.
type flexibleStrings []string

func (f *flexibleStrings) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*f = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*f = []string{one}
	return nil
}

func (f flexibleStrings) first() string {
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func (c *SolrClient) Fetch(ctx context.Context, key domain.QuizKey) ([]string, error) {
	if err := c.extract(ctx, key.Keyword); err != nil {
		return nil, fmt.Errorf("solr extract %q: %w", key.Keyword, err)
	}

	q := url.Values{}
	q.Set("q", `attr_stream_name:"`+key.Keyword+`"`)
	q.Set("wt", "json")
	var resp solrSelectResponse
	if err := getJSON(ctx, c.client, c.baseURL+"/select?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("solr select %q: %w", key.Keyword, err)
	}
	if len(resp.Response.Docs) == 0 {
		return nil, nil
	}

	doc := resp.Response.Docs[0]
	return SplitBody(doc.ContentType.first(), doc.Body.first()), nil
}

func (c *SolrClient) extract(ctx context.Context, streamURL string) error {
	q := url.Values{}
	q.Set("uprefix", "attr_")
	q.Set("fmap.content", "body")
	q.Set("commit", "true")
	form := url.Values{}
	form.Set("stream.url", streamURL)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/update/extract?"+q.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = do(ctx, c.client, req)
	return err
}

// SplitBody splits an extracted body into chunks using the separator Solr
// emits for contentType.
func SplitBody(contentType, body string) []string {
	if body == "" {
		return nil
	}
	sep := defaultPageSeparator
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "text/html; charset=utf-8":
		sep = htmlPageSeparator
	case "application/pdf":
		sep = pdfPageSeparator
	}
	return strings.Split(body, sep)
}
