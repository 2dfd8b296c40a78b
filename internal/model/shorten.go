package model

import "time"

// ShortenRequest представляет структуру запроса на сокращение URL.
// Code задаётся, когда пользователь хочет выбрать код сам.
type ShortenRequest struct {
	Code *string `json:"code,omitempty"`
	URL  string  `json:"url"`
}

// ShortenResponse представляет структуру ответа с сокращённым URL.
type ShortenResponse struct {
	CreatedAt time.Time `json:"created_at"`
	Result    string    `json:"result"`
	Code      string    `json:"code"`
	URL       string    `json:"url"`
	Clicks    int64     `json:"clicks"`
}

// URLInfo описание ссылки в ответах API.
type URLInfo struct {
	CreatedAt time.Time `json:"created_at"`
	ShortURL  string    `json:"short_url"`
	Code      string    `json:"code"`
	URL       string    `json:"url"`
	User      string    `json:"user"`
	Clicks    int64     `json:"clicks"`
}

// NextCodeResponse ответ диагностического эндпоинта фабрики кодов.
type NextCodeResponse struct {
	Code string `json:"code"`
}

// ErrorResponse тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}
