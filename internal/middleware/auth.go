package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Totarae/firefly/internal/auth"
	"github.com/Totarae/firefly/internal/model"
	"go.uber.org/zap"
)

// Authentication определяет пользователя запроса: сначала по сессии,
// затем по учётным данным стратегии аутентификации.
type Authentication struct {
	Sessions      *auth.Auth
	Authenticator auth.Authenticator
	Logger        *zap.Logger
}

// Resolve возвращает пользователя запроса или auth.ErrUnauthorized.
func (a *Authentication) Resolve(r *http.Request) (string, error) {
	if user, ok := a.Sessions.ValidateUserID(r); ok {
		return user, nil
	}
	creds := auth.CredentialsFromRequest(r)
	if creds == (auth.Credentials{}) {
		return "", auth.ErrUnauthorized
	}
	return a.Authenticator.Authenticate(r.Context(), creds)
}

// RequireUser пропускает только аутентифицированные запросы и кладёт
// пользователя в контекст.
func (a *Authentication) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Resolve(r)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "authentication required"
			if !errors.Is(err, auth.ErrUnauthorized) {
				a.Logger.Error("authentication backend failed", zap.Error(err))
				status = http.StatusServiceUnavailable
				msg = "authentication backend unavailable"
			}
			writeJSONError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: msg})
}
