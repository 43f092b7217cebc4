// Package ingest normalizes user-supplied image sources (uploaded files or
// remote URLs) into raw byte buffers tagged with a content type.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"adforge/internal/domain"
)

const defaultMIME = "image/jpeg"

// Blob is a fetched input: raw bytes plus the detected content type.
type Blob struct {
	Data []byte
	MIME string
}

// Fetcher resolves remote image URLs into blobs.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a default with a timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{httpClient: client}
}

// FromBytes wraps already-uploaded file contents, defaulting the content type.
func FromBytes(data []byte, mime string) *Blob {
	if mime == "" {
		mime = defaultMIME
	}
	return &Blob{Data: data, MIME: mime}
}

// FromURL downloads the resource at url into a blob. Network and status
// failures are reported as input-fetch errors.
func (f *Fetcher) FromURL(ctx context.Context, url string) (*Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrInputFetch, err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrInputFetch, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: status %d", domain.ErrInputFetch, url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrInputFetch, err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = defaultMIME
	}
	return &Blob{Data: data, MIME: mime}, nil
}
