// Package auth отвечает за аутентификацию: проверку учётных данных
// (API-ключ или LDAP) и сессии в куке auth_token.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/Totarae/firefly/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Стратегии аутентификации.
const (
	StrategyAPIKey = "api_key"
	StrategyLDAP   = "ldap"
)

// ErrUnauthorized учётные данные неверны или отсутствуют.
var ErrUnauthorized = errors.New("unauthorized")

// Credentials учётные данные из запроса. Заполняются только те поля,
// которые клиент передал.
type Credentials struct {
	APIKey   string
	Username string
	Password string
}

// Authenticator проверяет учётные данные и возвращает имя пользователя.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// APIKeyAuthenticator пускает всех, кто знает общий ключ, как model.DefaultUser.
type APIKeyAuthenticator struct {
	key    []byte
	hashed bool
}

// NewAPIKeyAuthenticator принимает ключ открытым текстом или bcrypt-хэш.
func NewAPIKeyAuthenticator(key string) (*APIKeyAuthenticator, error) {
	if key == "" {
		return nil, errors.New("api key is empty")
	}
	hashed := strings.HasPrefix(key, "$2a$") || strings.HasPrefix(key, "$2b$") || strings.HasPrefix(key, "$2y$")
	if hashed {
		if _, err := bcrypt.Cost([]byte(key)); err != nil {
			return nil, fmt.Errorf("bad api key hash: %w", err)
		}
	}
	return &APIKeyAuthenticator{key: []byte(key), hashed: hashed}, nil
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, creds Credentials) (string, error) {
	if creds.APIKey == "" {
		return "", ErrUnauthorized
	}
	if a.hashed {
		if bcrypt.CompareHashAndPassword(a.key, []byte(creds.APIKey)) != nil {
			return "", ErrUnauthorized
		}
		return model.DefaultUser, nil
	}
	if subtle.ConstantTimeCompare(a.key, []byte(creds.APIKey)) != 1 {
		return "", ErrUnauthorized
	}
	return model.DefaultUser, nil
}
