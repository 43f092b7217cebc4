package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adforge/internal/domain"
)

func newTestGenerator(t *testing.T, delays *[]time.Duration, handler http.HandlerFunc) *GeminiGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := NewGeminiGenerator(GeminiOptions{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewGeminiGenerator() error = %v", err)
	}
	return g
}

func inlineImageResponse(data []byte) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{
				"parts": []map[string]any{
					{"inlineData": map[string]string{
						"mimeType": "image/png",
						"data":     base64.StdEncoding.EncodeToString(data),
					}},
				},
			}},
		},
	})
	return string(body)
}

func TestGenerateDecodesInlineImage(t *testing.T) {
	var captured geminiGenerateRequest
	g := newTestGenerator(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, inlineImageResponse([]byte("generated-bytes")))
	})

	out, err := g.Generate(context.Background(), GenerateRequest{
		Prompt: "hero shot",
		Image:  []byte("source"),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(out) != "generated-bytes" {
		t.Fatalf("out = %q", out)
	}
	if captured.GenerationConfig == nil || len(captured.GenerationConfig.ResponseModalities) != 1 ||
		captured.GenerationConfig.ResponseModalities[0] != "IMAGE" {
		t.Fatalf("generationConfig = %+v", captured.GenerationConfig)
	}
	parts := captured.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "hero shot" || parts[1].InlineData == nil {
		t.Fatalf("parts = %+v", parts)
	}
}

func TestGenerateSendsAvatarAsSecondImage(t *testing.T) {
	var captured geminiGenerateRequest
	g := newTestGenerator(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, inlineImageResponse([]byte("x")))
	})

	_, err := g.Generate(context.Background(), GenerateRequest{
		Prompt: "p",
		Image:  []byte("source"),
		Avatar: []byte("face"),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	parts := captured.Contents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want 3 (text + image + avatar)", len(parts))
	}
	if parts[2].InlineData == nil {
		t.Fatalf("avatar part missing inlineData: %+v", parts[2])
	}
}

func TestGenerateRetriesThreeTimesWithLinearBackoff(t *testing.T) {
	var delays []time.Duration
	requests := 0
	g := newTestGenerator(t, &delays, func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, `{"error":{"code":500,"message":"overloaded"}}`, http.StatusInternalServerError)
	})

	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p", Image: []byte("s")})
	if !errors.Is(err, domain.ErrImageSynthesis) {
		t.Fatalf("Generate() error = %v, want ErrImageSynthesis", err)
	}
	if requests != 3 {
		t.Fatalf("requests = %d, want 3", requests)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestGenerateRecoversOnSecondAttempt(t *testing.T) {
	var delays []time.Duration
	requests := 0
	g := newTestGenerator(t, &delays, func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "transient", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, inlineImageResponse([]byte("ok")))
	})

	out, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p", Image: []byte("s")})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(out) != "ok" {
		t.Fatalf("out = %q", out)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("delays = %v, want [2s]", delays)
	}
}

func TestGenerateRejectsEmptyCandidates(t *testing.T) {
	g := newTestGenerator(t, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	})

	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p", Image: []byte("s")})
	if !errors.Is(err, domain.ErrImageSynthesis) {
		t.Fatalf("Generate() error = %v, want ErrImageSynthesis", err)
	}
}

func TestGenerateRejectsTextOnlyCandidate(t *testing.T) {
	g := newTestGenerator(t, nil, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"no image here"}]}}]}`)
	})

	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p", Image: []byte("s")})
	if !errors.Is(err, domain.ErrImageSynthesis) {
		t.Fatalf("Generate() error = %v, want ErrImageSynthesis", err)
	}
}
