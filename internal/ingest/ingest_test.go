package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"adforge/internal/domain"
)

func TestFromBytesDefaultsMIME(t *testing.T) {
	blob := FromBytes([]byte{1, 2, 3}, "")
	if blob.MIME != "image/jpeg" {
		t.Fatalf("MIME = %q, want image/jpeg", blob.MIME)
	}

	blob = FromBytes([]byte{1}, "image/png")
	if blob.MIME != "image/png" {
		t.Fatalf("MIME = %q, want image/png", blob.MIME)
	}
}

func TestFromURLDownloadsBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	blob, err := f.FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if string(blob.Data) != "png-bytes" {
		t.Fatalf("Data = %q, want png-bytes", blob.Data)
	}
	if blob.MIME != "image/png" {
		t.Fatalf("MIME = %q, want image/png", blob.MIME)
	}
}

func TestFromURLDefaultsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("raw"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	blob, err := f.FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if blob.MIME != "image/jpeg" {
		t.Fatalf("MIME = %q, want image/jpeg fallback", blob.MIME)
	}
}

func TestFromURLReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	_, err := f.FromURL(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrInputFetch) {
		t.Fatalf("FromURL() error = %v, want ErrInputFetch", err)
	}
}

func TestFromURLReportsNetworkError(t *testing.T) {
	f := NewFetcher(&http.Client{})
	_, err := f.FromURL(context.Background(), "http://127.0.0.1:0/nope")
	if !errors.Is(err, domain.ErrInputFetch) {
		t.Fatalf("FromURL() error = %v, want ErrInputFetch", err)
	}
}
