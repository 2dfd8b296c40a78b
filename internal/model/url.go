package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultUser владелец ссылок, когда стратегия аутентификации не различает
// пользователей (api_key).
const DefaultUser = "default user"

// URL запись о сокращённой ссылке.
type URL struct {
	CreatedAt time.Time
	URL       string
	Code      string
	User      string
	Clicks    int64
	ID        uuid.UUID
}

// NewURL создаёт новую запись с нулевым счётчиком переходов.
func NewURL(normalizedURL, user, code string) *URL {
	return &URL{
		ID:        uuid.New(),
		URL:       normalizedURL,
		Code:      code,
		User:      user,
		CreatedAt: time.Now().UTC(),
	}
}

// Stats агрегированная статистика хранилища.
type Stats struct {
	URLs  int `json:"urls"`
	Users int `json:"users"`
}
