package imagesearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGoogleClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != `"Go"` || q.Get("searchType") != "image" || q.Get("safe") != "high" || q.Get("key") != "k" || q.Get("cx") != "engine" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"items":[{"link":"https://img.example/a.png"},{"link":""},{"link":"https://img.example/b.jpg?x=1"}]}`)
	}))
	defer srv.Close()

	links, err := NewGoogleClient(srv.URL, "k", "engine", srv.Client()).SearchImages(context.Background(), `"Go"`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(links) != 2 || links[1] != "https://img.example/b.jpg?x=1" {
		t.Fatalf("unexpected links %v", links)
	}
}

func TestGoogleClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"quota exceeded"}}`)
	}))
	defer srv.Close()

	_, err := NewGoogleClient(srv.URL, "k", "", srv.Client()).SearchImages(context.Background(), "Go")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestHeadSizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			http.Error(w, "head only", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", "20480")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sizer := NewHeadSizer(srv.Client())
	size, err := sizer.ContentLength(context.Background(), srv.URL+"/big.png")
	if err != nil {
		t.Fatalf("content length: %v", err)
	}
	if size != 20480 {
		t.Fatalf("expected 20480, got %d", size)
	}
	if _, err := sizer.ContentLength(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Fatalf("expected error for missing image")
	}
}
