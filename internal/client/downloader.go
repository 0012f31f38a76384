package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Download is a fetched object and the content type the server reported
type Download struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads an object by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Download, error)
}

// HTTPDownloader fetches signed URLs with a plain GET
type HTTPDownloader struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewHTTPDownloader creates a downloader. maxBytes <= 0 means no limit.
func NewHTTPDownloader(timeout time.Duration, maxBytes int64) *HTTPDownloader {
	return &HTTPDownloader{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

func (d *HTTPDownloader) Fetch(ctx context.Context, url string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Service: "storage", StatusCode: resp.StatusCode, Body: string(data)}
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", d.maxBytes)
	}

	return &Download{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
