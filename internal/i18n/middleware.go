package i18n

import (
	"net/http"
	"time"
)

// LangCookie holds the language picked in the UI.
const LangCookie = "lang"

// Middleware injects a localizer into every request context. The language
// comes from the lang cookie, then Accept-Language, then the default passed to Init.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var pref string
			if c, err := r.Cookie(LangCookie); err == nil {
				pref = c.Value
			}
			lang := Match(pref, r.Header.Get("Accept-Language"))
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			ctx = WithLang(ctx, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetLangCookie remembers lang for a year.
func SetLangCookie(w http.ResponseWriter, lang, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookie,
		Value:    lang,
		Path:     path,
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
