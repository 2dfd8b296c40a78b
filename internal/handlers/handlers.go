// Package handlers содержит HTTP-обработчики сокращателя.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Totarae/firefly/internal/auth"
	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Тексты ошибок совместимы с API firefly.
const (
	msgInvalidURL   = "ERROR: The URL you posted is invalid."
	msgInvalidCode  = "ERROR: The code is invalid or already exists."
	msgUnknownError = "ERROR: An unknown error occurred"
	msgUnknownCode  = "Sorry, that code is unknown."
	msgForbidden    = "Permission denied: the url belongs to another user"
	msgBadCreds     = "Permission denied: invalid credentials"

	maxBodySize = 1 << 20
)

// Shortener операции сервиса, доступные обработчикам.
type Shortener interface {
	Shorten(ctx context.Context, rawURL, user string, requestedCode *string) (*model.URL, bool, error)
	Lookup(ctx context.Context, code string) (*model.URL, error)
	Resolve(ctx context.Context, code string) (*model.URL, error)
	List(ctx context.Context, opts model.ListOptions) ([]*model.URL, error)
	Delete(ctx context.Context, code, user string) error
	NextCode(ctx context.Context) (string, error)
	GetStats(ctx context.Context) (model.Stats, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	Service       Shortener
	Sessions      *auth.Auth
	Authenticator auth.Authenticator
	Logger        *zap.Logger
	BaseURL       string
}

func NewHandler(svc Shortener, sessions *auth.Auth, authenticator auth.Authenticator, logger *zap.Logger, baseURL string) *Handler {
	return &Handler{
		Service:       svc,
		Sessions:      sessions,
		Authenticator: authenticator,
		Logger:        logger,
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
	}
}

// ShortURL возвращает полную короткую ссылку для кода.
func (h *Handler) ShortURL(code string) string {
	return h.BaseURL + "/" + code
}

func currentUser(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user
	}
	return model.DefaultUser
}

// ReceiveURL POST /: тело запроса содержит URL, в ответ короткая ссылка текстом.
func (h *Handler) ReceiveURL(res http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		http.Error(res, "BadRequest", http.StatusBadRequest)
		return
	}

	rec, created, err := h.Service.Shorten(req.Context(), string(body), currentUser(req), nil)
	if err != nil {
		h.writeTextError(res, err)
		return
	}

	res.Header().Set("Content-Type", "text/plain; charset=utf-8")
	res.WriteHeader(createdStatus(created))
	_, _ = io.WriteString(res, h.ShortURL(rec.Code))
}

// ReceiveShorten POST /api/shorten: JSON {"url": ..., "code": ...}.
func (h *Handler) ReceiveShorten(res http.ResponseWriter, req *http.Request) {
	var in model.ShortenRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&in); err != nil {
		writeJSON(res, http.StatusBadRequest, model.ErrorResponse{Error: "invalid JSON body"})
		return
	}

	rec, created, err := h.Service.Shorten(req.Context(), in.URL, currentUser(req), in.Code)
	if err != nil {
		h.writeJSONError(res, err)
		return
	}

	writeJSON(res, createdStatus(created), model.ShortenResponse{
		Result:    h.ShortURL(rec.Code),
		Code:      rec.Code,
		URL:       rec.URL,
		Clicks:    rec.Clicks,
		CreatedAt: rec.CreatedAt,
	})
}

// AddURL GET|POST /api/add: совместимый с firefly API: url, short (необязательно).
func (h *Handler) AddURL(res http.ResponseWriter, req *http.Request) {
	var requested *string
	if err := req.ParseForm(); err != nil {
		http.Error(res, msgInvalidURL, http.StatusBadRequest)
		return
	}
	if _, ok := req.Form["short"]; ok {
		short := req.Form.Get("short")
		requested = &short
	}

	rec, created, err := h.Service.Shorten(req.Context(), req.Form.Get("url"), currentUser(req), requested)
	if err != nil {
		h.writeTextError(res, err)
		return
	}

	res.Header().Set("Content-Type", "text/plain; charset=utf-8")
	res.WriteHeader(createdStatus(created))
	_, _ = io.WriteString(res, h.ShortURL(rec.Code))
}

// Info GET /api/info/{code}: сведения о ссылке без регистрации перехода.
func (h *Handler) Info(res http.ResponseWriter, req *http.Request) {
	rec, err := h.Service.Lookup(req.Context(), chi.URLParam(req, "code"))
	if err != nil {
		h.writeJSONError(res, err)
		return
	}
	if rec == nil {
		h.writeJSONError(res, service.ErrNotFound)
		return
	}
	writeJSON(res, http.StatusOK, h.info(rec))
}

// GetUserURLs GET /api/urls?s=clicks&d=asc&limit=10&all=true
func (h *Handler) GetUserURLs(res http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	opts := model.ListOptions{
		User:       currentUser(req),
		SortColumn: q.Get("s"),
		SortOrder:  q.Get("d"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = limit
	}
	if all, err := strconv.ParseBool(q.Get("all")); err == nil && all {
		opts.All = true
		opts.User = ""
	}

	urls, err := h.Service.List(req.Context(), opts)
	if err != nil {
		h.writeJSONError(res, err)
		return
	}

	out := make([]model.URLInfo, 0, len(urls))
	for _, u := range urls {
		out = append(out, h.info(u))
	}
	writeJSON(res, http.StatusOK, out)
}

// DeleteURL DELETE /api/urls/{code}: удалить может только владелец.
func (h *Handler) DeleteURL(res http.ResponseWriter, req *http.Request) {
	if err := h.Service.Delete(req.Context(), chi.URLParam(req, "code"), currentUser(req)); err != nil {
		h.writeJSONError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

// ResponseURL GET /{code}: редирект на исходный URL с учётом перехода.
func (h *Handler) ResponseURL(res http.ResponseWriter, req *http.Request) {
	code := chi.URLParam(req, "code")
	if code == "" {
		http.Error(res, "Bad Request: Missing code in URL", http.StatusBadRequest)
		return
	}

	rec, err := h.Service.Resolve(req.Context(), code)
	if err != nil {
		h.writeTextError(res, err)
		return
	}

	http.Redirect(res, req, rec.URL, http.StatusMovedPermanently)
}

// Login POST /login: проверяет учётные данные и выставляет куку сессии.
func (h *Handler) Login(res http.ResponseWriter, req *http.Request) {
	creds := auth.CredentialsFromRequest(req)
	if creds.Username == "" {
		creds.Username = req.PostFormValue("username")
		creds.Password = req.PostFormValue("password")
	}

	user, err := h.Authenticator.Authenticate(req.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeJSON(res, http.StatusUnauthorized, model.ErrorResponse{Error: msgBadCreds})
			return
		}
		h.Logger.Error("login failed", zap.Error(err))
		writeJSON(res, http.StatusServiceUnavailable, model.ErrorResponse{Error: "authentication backend unavailable"})
		return
	}

	if err := h.Sessions.IssueCookie(res, user); err != nil {
		h.Logger.Error("failed to issue session", zap.Error(err))
		writeJSON(res, http.StatusInternalServerError, model.ErrorResponse{Error: msgUnknownError})
		return
	}
	h.Logger.Info("user logged in", zap.String("user", user))
	res.WriteHeader(http.StatusNoContent)
}

// Logout POST /logout
func (h *Handler) Logout(res http.ResponseWriter, _ *http.Request) {
	h.Sessions.ClearCookie(res)
	res.WriteHeader(http.StatusNoContent)
}

// PingDB GET /ping: проверка доступности хранилища.
func (h *Handler) PingDB(res http.ResponseWriter, req *http.Request) {
	if err := h.Service.Ping(req.Context()); err != nil {
		h.Logger.Error("storage ping failed", zap.Error(err))
		http.Error(res, "storage unavailable", http.StatusInternalServerError)
		return
	}
	res.WriteHeader(http.StatusOK)
}

// GetStats GET /api/internal/stats
func (h *Handler) GetStats(res http.ResponseWriter, req *http.Request) {
	stats, err := h.Service.GetStats(req.Context())
	if err != nil {
		h.writeJSONError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, stats)
}

// NextCode GET /api/internal/next-code: код, который получит следующая ссылка.
func (h *Handler) NextCode(res http.ResponseWriter, req *http.Request) {
	code, err := h.Service.NextCode(req.Context())
	if err != nil {
		h.writeJSONError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, model.NextCodeResponse{Code: code})
}

func (h *Handler) info(u *model.URL) model.URLInfo {
	return model.URLInfo{
		ShortURL:  h.ShortURL(u.Code),
		Code:      u.Code,
		URL:       u.URL,
		User:      u.User,
		Clicks:    u.Clicks,
		CreatedAt: u.CreatedAt,
	}
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}
