package router

import (
	"net"

	"github.com/Totarae/firefly/internal/handlers"
	"github.com/Totarae/firefly/internal/middleware"
	"github.com/Totarae/firefly/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Options зависимости маршрутизатора помимо обработчиков.
// Limiter может быть nil, тогда ограничение частоты отключено.
type Options struct {
	Auth          *middleware.Authentication
	Limiter       ratelimit.Limiter
	TrustedSubnet *net.IPNet
	// TrustedProxies адреса прокси, чьим заголовкам X-Real-IP и
	// X-Forwarded-For можно верить.
	TrustedProxies []*net.IPNet
	Logger         *zap.Logger
}

// NewRouter создаёт и настраивает маршрутизатор
func NewRouter(handler *handlers.Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(opts.TrustedProxies))
	r.Use(middleware.LoggingMiddleware(opts.Logger)) // Подключаем логирование
	r.Use(chimw.Recoverer)
	r.Use(middleware.GzipMiddleware) // Gzip-сжатие

	r.Get("/ping", handler.PingDB)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(opts.Auth.RequireUser)
		r.Get("/api/info/{code}", handler.Info)
		r.Get("/api/urls", handler.GetUserURLs)
		r.Delete("/api/urls/{code}", handler.DeleteURL)

		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(middleware.RateLimit(opts.Limiter, opts.Logger))
			}
			r.Post("/", handler.ReceiveURL)
			r.Post("/api/shorten", handler.ReceiveShorten)
			r.Get("/api/add", handler.AddURL)
			r.Post("/api/add", handler.AddURL)
		})
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.TrustedSubnet(opts.TrustedSubnet))
		r.Get("/stats", handler.GetStats)
		r.Get("/next-code", handler.NextCode)
	})

	r.Get("/{code}", handler.ResponseURL)
	return r
}
