package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetcherConditionalGet(t *testing.T) {
	var gotUserAgent, gotIfNoneMatch, gotIfModifiedSince string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		gotIfModifiedSince = r.Header.Get("If-Modified-Since")

		if gotIfNoneMatch == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 03 Jul 2023 10:00:00 GMT")
		_, _ = w.Write([]byte(rssDocument))
	}))
	defer server.Close()

	fetcher := NewFetcher("feedwatch-test", 5*time.Second)
	defer fetcher.Close()

	result, err := fetcher.Fetch(context.Background(), server.URL, Validators{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.NotModified {
		t.Error("Expected a full response")
	}
	if string(result.Body) != rssDocument {
		t.Error("Expected body to match the served document")
	}
	if result.Validators.ETag != `"v1"` {
		t.Errorf("Expected ETag '\"v1\"', got '%s'", result.Validators.ETag)
	}
	if result.Validators.LastModified != "Mon, 03 Jul 2023 10:00:00 GMT" {
		t.Errorf("Expected Last-Modified to be returned, got '%s'", result.Validators.LastModified)
	}
	if gotUserAgent != "feedwatch-test" {
		t.Errorf("Expected User-Agent 'feedwatch-test', got '%s'", gotUserAgent)
	}
	if gotIfNoneMatch != "" || gotIfModifiedSince != "" {
		t.Error("Expected no conditional headers without validators")
	}

	result, err = fetcher.Fetch(context.Background(), server.URL, result.Validators)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.NotModified {
		t.Error("Expected not modified")
	}
	if len(result.Body) != 0 {
		t.Error("Expected no body for not modified")
	}
	if result.Validators.ETag != `"v1"` {
		t.Errorf("Expected validators to be unchanged, got '%s'", result.Validators.ETag)
	}
	if gotIfModifiedSince != "Mon, 03 Jul 2023 10:00:00 GMT" {
		t.Errorf("Expected If-Modified-Since to be sent, got '%s'", gotIfModifiedSince)
	}
}

func TestFetcherReplacesValidators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument))
	}))
	defer server.Close()

	fetcher := NewFetcher("feedwatch-test", 5*time.Second)
	result, err := fetcher.Fetch(context.Background(), server.URL, Validators{ETag: `"old"`, LastModified: "yesterday"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Validators.IsZero() {
		t.Errorf("Expected validators not to be carried forward, got %+v", result.Validators)
	}
}

func TestFetcherStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		silent bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		_, err := NewFetcher("feedwatch-test", 5*time.Second).Fetch(context.Background(), server.URL, Validators{})
		server.Close()

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("Expected *FetchError for status %d, got %v", tt.status, err)
		}
		if fetchErr.Kind != FetchStatus {
			t.Errorf("Expected kind status, got %s", fetchErr.Kind)
		}
		if fetchErr.StatusCode != tt.status {
			t.Errorf("Expected status %d, got %d", tt.status, fetchErr.StatusCode)
		}
		if fetchErr.Silent() != tt.silent {
			t.Errorf("Expected silent=%v for status %d", tt.silent, tt.status)
		}
	}
}

func TestFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewFetcher("feedwatch-test", 50*time.Millisecond).Fetch(context.Background(), server.URL, Validators{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != FetchTimeout {
		t.Errorf("Expected kind timeout, got %s", fetchErr.Kind)
	}
	if !IsSilent(err) {
		t.Error("Expected timeout to be silent")
	}
}

func TestFetcherConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewFetcher("feedwatch-test", time.Second).Fetch(context.Background(), url, Validators{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != FetchNetwork {
		t.Errorf("Expected kind network, got %s", fetchErr.Kind)
	}
}

func TestFetcherRejectsOversizedDocument(t *testing.T) {
	chunk := make([]byte, 1<<20)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i <= maxDocumentSize/len(chunk); i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	fetcher := NewFetcher("feedwatch-test", 5*time.Second)
	defer fetcher.Close()

	_, err := fetcher.Fetch(context.Background(), server.URL, Validators{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got: %v", err)
	}
	if fetchErr.Kind != FetchTooLarge {
		t.Errorf("Expected kind %s, got %s", FetchTooLarge, fetchErr.Kind)
	}
	if !errors.Is(err, ErrDocumentTooLarge) {
		t.Errorf("Expected ErrDocumentTooLarge, got: %v", err)
	}
	if fetchErr.Silent() {
		t.Error("Expected oversized document not to be silent")
	}
}

func TestFetcherAcceptsDocumentAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, maxDocumentSize))
	}))
	defer server.Close()

	fetcher := NewFetcher("feedwatch-test", 5*time.Second)
	defer fetcher.Close()

	result, err := fetcher.Fetch(context.Background(), server.URL, Validators{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(result.Body) != maxDocumentSize {
		t.Errorf("Expected %d bytes, got %d", maxDocumentSize, len(result.Body))
	}
}
