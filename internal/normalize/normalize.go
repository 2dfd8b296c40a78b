// Package normalize проверяет и приводит к единому виду длинные URL
// перед сохранением и поиском дубликатов.
package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL возвращается, если URL нельзя сократить.
var ErrInvalidURL = errors.New("invalid url")

var allowedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
}

const upperhex = "0123456789ABCDEF"

// Normalize экранирует недопустимые символы, приводит схему и хост к нижнему
// регистру и проверяет, что схема http или https, а хост указан.
// Уже экранированные последовательности %XX не меняются. По краям
// отбрасываются только пробелы, управляющие символы экранируются.
func Normalize(raw string) (string, error) {
	raw = strings.Trim(raw, " ")
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	escaped := escape(raw)

	schemeEnd := strings.Index(escaped, "://")
	if schemeEnd <= 0 {
		return "", fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, raw)
	}
	scheme := strings.ToLower(escaped[:schemeEnd])
	if _, ok := allowedSchemes[scheme]; !ok {
		return "", fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidURL, scheme)
	}

	rest := escaped[schemeEnd+3:]
	authEnd := strings.IndexAny(rest, "/?#")
	if authEnd < 0 {
		authEnd = len(rest)
	}
	authority, tail := rest[:authEnd], rest[authEnd:]

	// регистр userinfo сохраняем
	host := authority
	userinfo := ""
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		userinfo, host = authority[:at+1], authority[at+1:]
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	if !strings.HasPrefix(tail, "/") {
		tail = "/" + tail
	}

	normalized := scheme + "://" + userinfo + strings.ToLower(host) + tail

	u, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return normalized, nil
}

// escape кодирует байты вне множества unreserved/reserved из RFC 3986,
// а также '%', за которым не следуют две шестнадцатеричные цифры.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(c)
		case c != '%' && allowed(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0F])
		}
	}
	return b.String()
}

func allowed(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~:/?#[]@!$&'()*+,;=", c) >= 0
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		return true
	}
	return false
}
