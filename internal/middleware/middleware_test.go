package middleware_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Totarae/firefly/internal/auth"
	"github.com/Totarae/firefly/internal/middleware"
	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func jsonHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"result":"http://localhost:8080/0"}`))
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := middleware.LoggingMiddleware(zap.New(core))(http.HandlerFunc(jsonHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/shorten", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "HTTP Request", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, int64(http.StatusCreated), fields["status"])
	assert.Equal(t, int64(len(`{"result":"http://localhost:8080/0"}`)), fields["size"])
}

func TestLoggingMiddleware_ServerErrorsAtErrorLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := middleware.LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestGzipMiddleware_CompressesJSON(t *testing.T) {
	h := middleware.GzipMiddleware(http.HandlerFunc(jsonHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"http://localhost:8080/0"}`, string(body))
}

func TestGzipMiddleware_SkipsRedirects(t *testing.T) {
	h := middleware.GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://example.com/", http.StatusMovedPermanently)
	}))

	req := httptest.NewRequest(http.MethodGet, "/0", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "http://example.com/", resp.Header.Get("Location"))
}

func TestGzipMiddleware_DecompressesRequest(t *testing.T) {
	var got string
	h := middleware.GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	}))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("http://example.com/"))
	require.NoError(t, zw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "http://example.com/", got)
}

func TestGzipMiddleware_BadRequestBody(t *testing.T) {
	h := middleware.GzipMiddleware(http.HandlerFunc(jsonHandler))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type staticAuthenticator struct {
	key, user string
	err       error
}

func (s staticAuthenticator) Authenticate(_ context.Context, creds auth.Credentials) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if creds.APIKey != s.key {
		return "", auth.ErrUnauthorized
	}
	return s.user, nil
}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	_, _ = w.Write([]byte(user))
}

func TestRequireUser(t *testing.T) {
	sessions := auth.New("secret", time.Hour)
	a := &middleware.Authentication{
		Sessions:      sessions,
		Authenticator: staticAuthenticator{key: "k", user: model.DefaultUser},
		Logger:        zap.NewNop(),
	}
	h := a.RequireUser(http.HandlerFunc(whoAmI))

	t.Run("no credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/urls", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("api key in query", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/urls?api_key=k", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.DefaultUser, rec.Body.String())
	})

	t.Run("api key header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/urls", nil)
		req.Header.Set("X-API-Key", "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/urls?api_key=nope", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("session cookie", func(t *testing.T) {
		token, err := sessions.SignToken("bob")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/urls", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob", rec.Body.String())
	})
}

func TestRequireUser_BackendFailure(t *testing.T) {
	a := &middleware.Authentication{
		Sessions:      auth.New("secret", time.Hour),
		Authenticator: staticAuthenticator{err: assert.AnError},
		Logger:        zap.NewNop(),
	}
	rec := httptest.NewRecorder()
	a.RequireUser(http.HandlerFunc(whoAmI)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?api_key=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := middleware.RateLimit(ratelimit.NewLocal(0.001, 2), zap.NewNop())(http.HandlerFunc(jsonHandler))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/shorten", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusCreated, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002"))
	assert.Equal(t, http.StatusCreated, send("10.0.0.2:1000"))
}

func TestTrustedSubnet(t *testing.T) {
	_, subnet, err := net.ParseCIDR("192.168.1.0/24")
	require.NoError(t, err)
	h := middleware.TrustedSubnet(subnet)(http.HandlerFunc(jsonHandler))

	tests := []struct {
		name   string
		remote string
		realIP string
		want   int
	}{
		{"inside by remote addr", "192.168.1.20:5000", "", http.StatusCreated},
		{"bare ip from RealIP", "192.168.1.21", "", http.StatusCreated},
		{"outside", "10.0.0.1:1", "", http.StatusForbidden},
		{"header alone is ignored", "10.0.0.1:1", "192.168.1.10", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/internal/stats", nil)
			req.RemoteAddr = tt.remote
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	middleware.TrustedSubnet(nil)(http.HandlerFunc(jsonHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRealIP(t *testing.T) {
	_, proxies, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	var seen string
	h := middleware.RealIP([]*net.IPNet{proxies})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct client ignores headers", "203.0.113.5:4000", map[string]string{"X-Real-IP": "192.168.1.10"}, "203.0.113.5:4000"},
		{"direct client ignores forwarded-for", "203.0.113.5:4000", map[string]string{"X-Forwarded-For": "192.168.1.10"}, "203.0.113.5:4000"},
		{"proxy with real ip", "10.1.1.1:80", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"proxy chain skips trusted hops", "10.1.1.1:80", map[string]string{"X-Forwarded-For": "6.6.6.6, 198.51.100.7, 10.2.2.2"}, "198.51.100.7"},
		{"proxy with garbage header", "10.1.1.1:80", map[string]string{"X-Forwarded-For": "nope"}, "10.1.1.1:80"},
		{"proxy without headers", "10.1.1.1:80", nil, "10.1.1.1:80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRateLimit_IgnoresSpoofedHeaders(t *testing.T) {
	h := middleware.RealIP(nil)(middleware.RateLimit(ratelimit.NewLocal(0.001, 1), zap.NewNop())(http.HandlerFunc(jsonHandler)))

	send := func(fake string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/shorten", nil)
		req.RemoteAddr = "203.0.113.5:4000"
		req.Header.Set("X-Real-IP", fake)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("2.2.2.2"))
}
