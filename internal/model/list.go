package model

import "strings"

// Колонки и направления сортировки, допустимые для списка ссылок.
const (
	SortCreatedAt = "created_at"
	SortClicks    = "clicks"
	SortCode      = "code"
	SortURL       = "url"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

var sortColumns = map[string]struct{}{
	SortCreatedAt: {},
	SortClicks:    {},
	SortCode:      {},
	SortURL:       {},
}

// SortColumns возвращает допустимые колонки сортировки.
func SortColumns() []string {
	return []string{SortCreatedAt, SortClicks, SortCode, SortURL}
}

// ListOptions параметры выборки списка ссылок.
// Пустой User вместе с All выбирает ссылки всех пользователей.
type ListOptions struct {
	User       string
	SortColumn string
	SortOrder  string
	Limit      int
	All        bool
}

// Sanitize подставляет значения по умолчанию вместо неизвестных колонок,
// направлений и некорректного лимита.
func (o ListOptions) Sanitize(defaultLimit, maxLimit int) ListOptions {
	o.SortColumn = strings.ToLower(strings.TrimSpace(o.SortColumn))
	if _, ok := sortColumns[o.SortColumn]; !ok {
		o.SortColumn = SortCreatedAt
	}

	o.SortOrder = strings.ToLower(strings.TrimSpace(o.SortOrder))
	if o.SortOrder != OrderAsc {
		o.SortOrder = OrderDesc
	}

	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if maxLimit > 0 && o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	return o
}
