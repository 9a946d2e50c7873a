package middleware

import (
	"RiderGuard/pkg/i18n"

	"github.com/gin-gonic/gin"
)

const LanguageKey = "lang"

// LanguageMiddleware stores the negotiated language under LanguageKey.
// The lang query parameter wins over Accept-Language.
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18nSupport.Match(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(LanguageKey, lang)
		c.Next()
	}
}
