package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"anyquiz-service/internal/app"
)

// HTTPTrigger starts question generation on an external service with
// GET {endpoint}?keyword=K. The service reads the paragraphs and writes the
// questions to the shared store itself; its response body is ignored.
type HTTPTrigger struct {
	endpoint string
	client   *http.Client
}

func NewHTTPTrigger(endpoint string, client *http.Client) *HTTPTrigger {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPTrigger{endpoint: endpoint, client: client}
}

func (t *HTTPTrigger) Generate(ctx context.Context, job app.GenerationJob) error {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("generation url: %w", err)
	}
	q := u.Query()
	q.Set("keyword", job.Key.Keyword)
	if job.Key.Source != "" {
		q.Set("source", string(job.Key.Source))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger generation for %s: %w", job.Key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("trigger generation for %s: status %d", job.Key, resp.StatusCode)
	}
	return nil
}
