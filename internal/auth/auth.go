package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	cookieName = "auth_token"
	issuer     = "firefly"

	DefaultSessionTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken токен сессии отсутствует, подделан или истёк.
var ErrInvalidToken = errors.New("invalid session token")

// Auth выдаёт и проверяет токены сессии (JWT, HS256).
type Auth struct {
	SecretKey string
	TTL       time.Duration
	now       func() time.Time
}

func New(secret string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Auth{SecretKey: secret, TTL: ttl, now: time.Now}
}

// SignToken создаёт токен для пользователя.
func (a *Auth) SignToken(user string) (string, error) {
	now := a.now()
	claims := &jwt.RegisteredClaims{
		Subject:   user,
		Issuer:    issuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.TTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ParseToken проверяет токен и возвращает пользователя.
func (a *Auth) ParseToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(a.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// IssueCookie выставляет куку сессии auth_token для пользователя.
func (a *Auth) IssueCookie(w http.ResponseWriter, user string) error {
	token, err := a.SignToken(user)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.TTL.Seconds()),
	})
	return nil
}

// ClearCookie удаляет куку сессии.
func (a *Auth) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// ValidateUserID возвращает пользователя из куки или заголовка Authorization: Bearer.
func (a *Auth) ValidateUserID(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		if user, err := a.ParseToken(cookie.Value); err == nil {
			return user, true
		}
	}

	if token, ok := BearerToken(r.Header.Get("Authorization")); ok {
		if user, err := a.ParseToken(token); err == nil {
			return user, true
		}
	}
	return "", false
}

// BearerToken извлекает токен из значения заголовка Authorization.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// CredentialsFromRequest собирает учётные данные из запроса: параметр
// api_key, заголовок X-API-Key или HTTP Basic.
func CredentialsFromRequest(r *http.Request) Credentials {
	var creds Credentials
	creds.APIKey = r.Header.Get("X-API-Key")
	if creds.APIKey == "" {
		creds.APIKey = r.URL.Query().Get("api_key")
	}
	if creds.APIKey == "" && r.Method == http.MethodPost {
		creds.APIKey = r.PostFormValue("api_key")
	}
	if user, pass, ok := r.BasicAuth(); ok {
		creds.Username, creds.Password = user, pass
	}
	return creds
}
