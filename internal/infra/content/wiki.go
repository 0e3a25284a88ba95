package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"anyquiz-service/internal/domain"
)

// WikiClient calls the wiki summary service: GET {baseURL}?keyword=K
// answering {"summary_text": "..."} or {"summary_text": ["...", ...]}.
type WikiClient struct {
	baseURL string
	client  *http.Client
}

func NewWikiClient(baseURL string, client *http.Client) *WikiClient {
	return &WikiClient{baseURL: baseURL, client: newHTTPClient(client)}
}

type wikiResponse struct {
	SummaryText json.RawMessage `json:"summary_text"`
}

func (c *WikiClient) Fetch(ctx context.Context, key domain.QuizKey) ([]string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("wiki url: %w", err)
	}
	q := u.Query()
	q.Set("keyword", key.Keyword)
	u.RawQuery = q.Encode()

	var resp wikiResponse
	if err := getJSON(ctx, c.client, u.String(), &resp); err != nil {
		return nil, fmt.Errorf("wiki summary %q: %w", key.Keyword, err)
	}
	return decodeSummary(resp.SummaryText)
}

// decodeSummary accepts a flat string (one chunk) or a list of chunks.
func decodeSummary(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var chunks []string
	if err := json.Unmarshal(raw, &chunks); err == nil {
		return chunks, nil
	}
	var flat string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("summary_text is neither a string nor a list: %w", err)
	}
	return []string{flat}, nil
}
