package app

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"anyquiz-service/internal/domain"
)

// ImageSearcher returns ranked image links for a query.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string) ([]string, error)
}

// ImageSizer reports the byte size of a remote image.
type ImageSizer interface {
	ContentLength(ctx context.Context, url string) (int64, error)
}

const (
	DefaultImage         = "images/quiz.png"
	DefaultImageMinBytes = 10000
	DefaultImageTries    = 10
)

var acceptedImageExtensions = map[string]struct{}{".jpg": {}, ".png": {}}

// ImageSelector picks a quiz image. It never fails: any problem yields the
// default image.
type ImageSelector struct {
	searcher ImageSearcher
	sizer    ImageSizer
	minBytes int64
	maxTries int
	fallback string
}

// NewImageSelector builds a selector; searcher may be nil to always use the fallback.
func NewImageSelector(searcher ImageSearcher, sizer ImageSizer, minBytes int64, maxTries int, fallback string) *ImageSelector {
	if minBytes <= 0 {
		minBytes = DefaultImageMinBytes
	}
	if maxTries <= 0 {
		maxTries = DefaultImageTries
	}
	if fallback == "" {
		fallback = DefaultImage
	}
	return &ImageSelector{searcher: searcher, sizer: sizer, minBytes: minBytes, maxTries: maxTries, fallback: fallback}
}

// Select walks the ranked results and returns the first jpg/png link whose
// size reaches minBytes, trying at most maxTries results.
func (s *ImageSelector) Select(ctx context.Context, keyword string) string {
	if s.searcher == nil || s.sizer == nil {
		return s.fallback
	}

	links, err := s.searcher.SearchImages(ctx, `"`+keyword+`"`)
	if err != nil {
		log.Printf("image search %q: %v", keyword, fmt.Errorf("%w: %v", domain.ErrExternalServiceDegraded, err))
		return s.fallback
	}

	for i, link := range links {
		if i >= s.maxTries {
			break
		}
		candidate, _, _ := strings.Cut(link, "?")
		if _, ok := acceptedImageExtensions[strings.ToLower(path.Ext(candidate))]; !ok {
			continue
		}
		size, err := s.sizer.ContentLength(ctx, candidate)
		if err != nil {
			verboseLog("size image %s: %v", candidate, err)
			continue
		}
		if size >= s.minBytes {
			return candidate
		}
	}

	verboseLog("no usable image for %q among %d results", keyword, len(links))
	return s.fallback
}
