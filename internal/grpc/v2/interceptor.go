package v2

import (
	"context"
	"errors"
	"time"

	"github.com/Totarae/firefly/internal/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthInterceptor проверяет x-api-key или authorization: Bearer <jwt>
// и кладёт пользователя в контекст.
func AuthInterceptor(sessions *auth.Auth, authenticator auth.Authenticator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)

		if token, ok := firstBearer(md.Get("authorization")); ok {
			user, err := sessions.ParseToken(token)
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, "invalid token")
			}
			return handler(auth.WithUser(ctx, user), req)
		}

		keys := md.Get("x-api-key")
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, "credentials required")
		}
		user, err := authenticator.Authenticate(ctx, auth.Credentials{APIKey: keys[0]})
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				return nil, status.Error(codes.Unauthenticated, "invalid credentials")
			}
			logger.Error("authentication backend failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unavailable, "authentication backend unavailable")
		}
		return handler(auth.WithUser(ctx, user), req)
	}
}

func firstBearer(values []string) (string, bool) {
	for _, v := range values {
		if token, ok := auth.BearerToken(v); ok {
			return token, true
		}
	}
	return "", false
}

// LoggingInterceptor пишет в лог метод, код ответа и длительность вызова.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC Request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
