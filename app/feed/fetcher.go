package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxDocumentSize = 10 << 20

const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 90 * time.Second
)

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

// NewFetcher builds a Fetcher with its own pooled transport. The timeout is
// applied per request through the context, not on the client.
func NewFetcher(userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Fetch issues a conditional GET for url. A 304 yields a result with
// NotModified set and no body. A 200 yields the body and the validators from
// the response, which replace the previous ones entirely.
func (f *Fetcher) Fetch(ctx context.Context, url string, validators Validators) (*FetchResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Kind: FetchNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	if validators.ETag != "" {
		req.Header.Set("If-None-Match", validators.ETag)
	}
	if validators.LastModified != "" {
		req.Header.Set("If-Modified-Since", validators.LastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Kind: transportKind(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return &FetchResult{NotModified: true, Validators: validators, Duration: time.Since(start)}, nil
	case http.StatusOK:
	default:
		return nil, &FetchError{URL: url, Kind: FetchStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, &FetchError{URL: url, Kind: transportKind(err), Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if len(body) > maxDocumentSize {
		return nil, &FetchError{URL: url, Kind: FetchTooLarge, Err: fmt.Errorf("%w of %d bytes", ErrDocumentTooLarge, maxDocumentSize)}
	}

	return &FetchResult{
		Body: body,
		Validators: Validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
		Duration: time.Since(start),
	}, nil
}

// Close releases idle connections held by the transport.
func (f *Fetcher) Close() {
	if transport, ok := f.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func transportKind(err error) FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}
	return FetchNetwork
}
