package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

const localeKey contextKey = "locale"

var supportedLocales = language.NewMatcher([]language.Tag{
	language.English, // default
	language.Indonesian,
	language.Spanish,
	language.Portuguese,
})

// I18N resolves the caller's locale from the X-Locale header or the
// Accept-Language header and stores the matched tag in the request context.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, defaultLocale)
			ctx := context.WithValue(r.Context(), localeKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if v := r.Header.Get("X-Locale"); v != "" {
		if tag, err := language.Parse(v); err == nil {
			matched, _, _ := supportedLocales.Match(tag)
			return baseLang(matched)
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			matched, _, _ := supportedLocales.Match(tags...)
			return baseLang(matched)
		}
	}
	if fallback != "" {
		return fallback
	}
	return "en"
}

func baseLang(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey).(string); ok {
		return v
	}
	return "en"
}
