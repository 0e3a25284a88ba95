package content

import (
	"context"
	"fmt"
	"log"

	"anyquiz-service/internal/app"
	"anyquiz-service/internal/domain"
)

// Router picks the content fetcher registered for a quiz key's source.
type Router struct {
	fetchers map[domain.Source]app.ContentFetcher
}

func NewRouter() *Router {
	return &Router{fetchers: make(map[domain.Source]app.ContentFetcher)}
}

// Register binds a source to a fetcher, replacing any earlier binding.
func (r *Router) Register(source domain.Source, fetcher app.ContentFetcher) *Router {
	r.fetchers[source] = fetcher
	return r
}

func (r *Router) Fetch(ctx context.Context, key domain.QuizKey) ([]string, error) {
	fetcher, ok := r.fetchers[key.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedSource, key.Source)
	}
	return fetcher.Fetch(ctx, key)
}

// Fallback tries each fetcher in turn and returns the first non-empty result.
type Fallback []app.ContentFetcher

func (f Fallback) Fetch(ctx context.Context, key domain.QuizKey) ([]string, error) {
	var lastErr error
	for _, fetcher := range f {
		chunks, err := fetcher.Fetch(ctx, key)
		if err != nil {
			log.Printf("content fetch %s: %v", key, err)
			lastErr = err
			continue
		}
		if len(chunks) > 0 {
			return chunks, nil
		}
	}
	return nil, lastErr
}
