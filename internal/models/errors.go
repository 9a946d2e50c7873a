package models

import (
	"errors"
	"strings"

	errs "RiderGuard/pkg/errors"

	"gorm.io/gorm"
)

// notFound converts gorm.ErrRecordNotFound into a coded NotFound error and
// passes every other error through unchanged.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(format, args...)
	}
	return err
}

// isUniqueViolation recognises duplicate key errors from the supported
// drivers. gorm translates them only when TranslateError is enabled.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unique constraint failed", "duplicate entry", "duplicate key value"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
