package imagesearch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HeadSizer sizes remote images with a HEAD request.
type HeadSizer struct {
	client *http.Client
}

func NewHeadSizer(client *http.Client) *HeadSizer {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HeadSizer{client: client}
}

// ContentLength returns the advertised size, or -1 when the server does not send one.
func (s *HeadSizer) ContentLength(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("head %s: status %d", url, resp.StatusCode)
	}
	return resp.ContentLength, nil
}
