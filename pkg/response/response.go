// Package response renders the JSON envelope shared by every HTTP handler.
package response

import (
	"net/http"

	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Translator resolves message keys for a language.
type Translator interface {
	T(lang, key string, data map[string]interface{}) string
}

var errorKeys = map[int]string{
	errs.CodeValidation:          "error.validation",
	errs.CodeInvalidTransition:   "error.invalid_transition",
	errs.CodeNotFound:            "error.not_found",
	errs.CodeUnauthorized:        "error.unauthorized",
	errs.CodeTransientDependency: "error.transient",
	errs.CodeConflict:            "error.conflict",
}

// Lang returns the language negotiated by middleware.LanguageMiddleware.
func Lang(c *gin.Context) string {
	return c.GetString(middleware.LanguageKey)
}

func Success(c *gin.Context, message string, data interface{}) {
	render(c, http.StatusOK, message, data)
}

func Created(c *gin.Context, message string, data interface{}) {
	render(c, http.StatusCreated, message, data)
}

func render(c *gin.Context, status int, message string, data interface{}) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// Fail answers 400 with a plain message.
func Fail(c *gin.Context, message string, data interface{}) {
	body := gin.H{"success": false, "error": message}
	if data != nil {
		body["data"] = data
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

// Error maps err onto its status code. Coded errors carry their message as
// detail; anything else is reported as an internal error without detail.
func Error(c *gin.Context, tr Translator, err error) {
	status := errs.HTTPStatus(err)
	code := errs.GetCode(err)
	key, known := errorKeys[code]
	if !known {
		key = "error.internal"
	}

	msg := key
	if tr != nil {
		msg = tr.T(Lang(c), key, nil)
	}
	body := gin.H{"success": false, "error": msg, "code": code}
	if known {
		body["detail"] = errs.GetMessage(err)
	} else {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}
