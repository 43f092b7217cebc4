package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func localeFor(t *testing.T, configure func(*http.Request)) string {
	t.Helper()
	var got string
	handler := I18N("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	configure(req)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestI18NPrefersExplicitHeader(t *testing.T) {
	got := localeFor(t, func(r *http.Request) {
		r.Header.Set("X-Locale", "id")
		r.Header.Set("Accept-Language", "es")
	})
	if got != "id" {
		t.Fatalf("locale = %q, want id", got)
	}
}

func TestI18NFallsBackToAcceptLanguage(t *testing.T) {
	got := localeFor(t, func(r *http.Request) {
		r.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	})
	if got != "pt" {
		t.Fatalf("locale = %q, want pt", got)
	}
}

func TestI18NUnsupportedLanguageMatchesDefault(t *testing.T) {
	got := localeFor(t, func(r *http.Request) {
		r.Header.Set("Accept-Language", "zz")
	})
	if got != "en" {
		t.Fatalf("locale = %q, want en", got)
	}
}

func TestI18NDefaultsWithoutHeaders(t *testing.T) {
	got := localeFor(t, func(r *http.Request) {})
	if got != "en" {
		t.Fatalf("locale = %q, want en", got)
	}
}
