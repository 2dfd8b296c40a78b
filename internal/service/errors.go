package service

import (
	"errors"

	"github.com/Totarae/firefly/internal/code"
	"github.com/Totarae/firefly/internal/normalize"
)

// Ошибки сервиса. Каждая соответствует отдельному ответу на границе.
var (
	ErrInvalidURL  = normalize.ErrInvalidURL
	ErrInvalidCode = code.ErrInvalidCode
	ErrNotFound    = errors.New("url not found")
	ErrForbidden   = errors.New("url belongs to another user")
)

// IsClientError сообщает, вызвана ли ошибка некорректным запросом,
// а не сбоем хранилища.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden)
}
