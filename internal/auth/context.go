package auth

import "context"

type userKey struct{}

// WithUser кладёт аутентифицированного пользователя в контекст.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext возвращает пользователя, положенного WithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey{}).(string)
	return user, ok && user != ""
}
