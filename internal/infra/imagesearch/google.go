package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the Google Custom Search JSON API.
const DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleClient runs image searches against Google Custom Search.
type GoogleClient struct {
	endpoint string
	apiKey   string
	cx       string
	client   *http.Client
}

func NewGoogleClient(endpoint, apiKey, cx string, client *http.Client) *GoogleClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleClient{endpoint: endpoint, apiKey: apiKey, cx: cx, client: client}
}

type searchResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SearchImages returns result links in rank order.
func (c *GoogleClient) SearchImages(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("searchType", "image")
	q.Set("safe", "high")
	q.Set("key", c.apiKey)
	if c.cx != "" {
		q.Set("cx", c.cx)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}
	defer resp.Body.Close()

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode image search: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("image search: %d %s", body.Error.Code, body.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search: unexpected status %d", resp.StatusCode)
	}

	links := make([]string, 0, len(body.Items))
	for _, item := range body.Items {
		if link := strings.TrimSpace(item.Link); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}
