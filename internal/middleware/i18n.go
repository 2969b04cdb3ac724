package middleware

import (
	"context"
	"net/http"
	"strings"

	"imageprompt/internal/i18n"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// chineseRegions get zh when the request carries no usable language hint.
var chineseRegions = map[string]struct{}{
	"CN": {}, "TW": {}, "HK": {}, "MO": {}, "SG": {},
}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N stores the request locale (en or zh) and, when known, the caller's
// country in the request context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	if !i18n.Supported(defaultLocale) {
		defaultLocale = i18n.English
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string, country string) string {
	if v := strings.TrimSpace(r.URL.Query().Get("lang")); v != "" {
		if locale, ok := i18n.Normalize(v); ok {
			return locale
		}
	}
	if locale, ok := i18n.Normalize(r.Header.Get("X-Locale")); ok {
		return locale
	}
	if locale, ok := i18n.Normalize(r.Header.Get("Accept-Language")); ok {
		return locale
	}
	if _, ok := chineseRegions[country]; ok {
		return i18n.Chinese
	}
	if country != "" {
		return i18n.English
	}
	if fallback != "" {
		return fallback
	}
	return i18n.English
}

// LocaleFromContext returns the locale chosen by I18N, defaulting to en.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return i18n.English
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the request:
// CDN headers first, then the region subtag of the language hints, then GeoIP.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"} {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" && !strings.EqualFold(val, "XX") {
			return strings.ToUpper(val)
		}
	}
	if region := localeRegion(r.Header.Get("X-Locale")); region != "" {
		return region
	}
	if region := localeRegion(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

func localeRegion(accept string) string {
	for _, part := range strings.Split(accept, ",") {
		token := strings.TrimSpace(strings.Split(part, ";")[0])
		if token == "" {
			continue
		}
		subtags := strings.FieldsFunc(token, func(r rune) bool { return r == '-' || r == '_' })
		for _, sub := range subtags[1:] {
			if len(sub) == 2 {
				return strings.ToUpper(sub)
			}
		}
		return ""
	}
	return ""
}
