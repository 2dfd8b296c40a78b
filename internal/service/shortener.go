// Package service реализует операции сокращателя: выдачу кодов,
// разрешение ссылок, учёт переходов, списки и удаление.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/normalize"
	"github.com/Totarae/firefly/internal/storage"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

const (
	defaultRecentURLs   = 25
	defaultMaxListLimit = 1000
	defaultMaxAttempts  = 5
	maxCodeLength       = 64
)

var requestedCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// коды, совпадающие с маршрутами HTTP API
var reservedCodes = []interface{}{"api", "login", "logout", "ping"}

// ShortenerService выполняет операции над ссылками поверх хранилища.
type ShortenerService struct {
	Repo         storage.Storage
	Logger       *zap.Logger
	RecentURLs   int
	MaxListLimit int
	MaxAttempts  int
}

// NewShortenerService создаёт сервис; нулевые лимиты заменяются значениями по умолчанию.
func NewShortenerService(repo storage.Storage, logger *zap.Logger, recentURLs, maxListLimit int) *ShortenerService {
	if recentURLs <= 0 {
		recentURLs = defaultRecentURLs
	}
	if maxListLimit <= 0 {
		maxListLimit = defaultMaxListLimit
	}
	return &ShortenerService{
		Repo:         repo,
		Logger:       logger,
		RecentURLs:   recentURLs,
		MaxListLimit: maxListLimit,
		MaxAttempts:  defaultMaxAttempts,
	}
}

// Shorten возвращает запись для URL пользователя, создавая её при необходимости.
// created равно false, если у пользователя уже была запись с этим URL.
// requestedCode, если задан, используется как код вместо выданного фабрикой.
func (s *ShortenerService) Shorten(ctx context.Context, rawURL, user string, requestedCode *string) (rec *model.URL, created bool, err error) {
	normalized, err := normalize.Normalize(rawURL)
	if err != nil {
		return nil, false, err
	}
	if user == "" {
		user = model.DefaultUser
	}

	existing, err := s.findExisting(ctx, user, normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if requestedCode != nil {
		return s.createWithCode(ctx, normalized, user, *requestedCode)
	}
	return s.createWithNextCode(ctx, normalized, user)
}

func (s *ShortenerService) findExisting(ctx context.Context, user, normalized string) (*model.URL, error) {
	rec, err := s.Repo.FindByUserURL(ctx, user, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.Logger.Error("failed to look up url", zap.String("user", user), zap.Error(err))
		return nil, fmt.Errorf("failed to look up url: %w", err)
	}
	return rec, nil
}

func (s *ShortenerService) createWithCode(ctx context.Context, normalized, user, requested string) (*model.URL, bool, error) {
	if err := validateRequestedCode(requested); err != nil {
		return nil, false, err
	}

	rec := model.NewURL(normalized, user, requested)
	err := s.Repo.CreateWithCode(ctx, rec)
	switch {
	case err == nil:
		s.Logger.Info("url shortened", zap.String("code", rec.Code), zap.String("user", user), zap.Bool("requested", true))
		return rec, true, nil
	case errors.Is(err, storage.ErrCodeTaken):
		return nil, false, fmt.Errorf("%w: %q is already taken", ErrInvalidCode, requested)
	case errors.Is(err, storage.ErrDuplicate):
		return s.existingAfterRace(ctx, user, normalized)
	default:
		s.Logger.Error("failed to save url", zap.String("code", requested), zap.Error(err))
		return nil, false, fmt.Errorf("failed to save url: %w", err)
	}
}

func (s *ShortenerService) createWithNextCode(ctx context.Context, normalized, user string) (*model.URL, bool, error) {
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		rec := model.NewURL(normalized, user, "")
		err := s.Repo.CreateWithNextCode(ctx, rec)
		switch {
		case err == nil:
			s.Logger.Info("url shortened", zap.String("code", rec.Code), zap.String("user", user))
			return rec, true, nil
		case errors.Is(err, storage.ErrCodeTaken):
			s.Logger.Warn("generated code was taken concurrently, retrying", zap.Int("attempt", attempt))
		case errors.Is(err, storage.ErrDuplicate):
			return s.existingAfterRace(ctx, user, normalized)
		default:
			s.Logger.Error("failed to save url", zap.String("user", user), zap.Error(err))
			return nil, false, fmt.Errorf("failed to save url: %w", err)
		}
	}
	return nil, false, fmt.Errorf("failed to allocate a code after %d attempts", s.MaxAttempts)
}

// existingAfterRace возвращает запись, которую параллельный запрос того же
// пользователя успел создать между проверкой и вставкой.
func (s *ShortenerService) existingAfterRace(ctx context.Context, user, normalized string) (*model.URL, bool, error) {
	rec, err := s.findExisting(ctx, user, normalized)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, errors.New("duplicate url disappeared before it could be read")
	}
	return rec, false, nil
}

func validateRequestedCode(c string) error {
	err := validation.Validate(c,
		validation.Required.Error("code must not be empty"),
		validation.RuneLength(1, maxCodeLength).Error(fmt.Sprintf("code must be at most %d characters", maxCodeLength)),
		validation.Match(requestedCodePattern).Error("code may contain only letters, digits, '-' and '_'"),
		validation.NotIn(reservedCodes...).Error("code is reserved"),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	return nil
}

// Lookup возвращает живую запись по коду или nil, если её нет.
func (s *ShortenerService) Lookup(ctx context.Context, c string) (*model.URL, error) {
	rec, err := s.Repo.FindByCode(ctx, c)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}
	return rec, nil
}

// RegisterClick увеличивает счётчик переходов записи ровно на единицу.
func (s *ShortenerService) RegisterClick(ctx context.Context, rec *model.URL) (*model.URL, error) {
	return s.click(ctx, rec.Code)
}

// Resolve находит запись по коду и регистрирует переход.
func (s *ShortenerService) Resolve(ctx context.Context, c string) (*model.URL, error) {
	return s.click(ctx, c)
}

func (s *ShortenerService) click(ctx context.Context, c string) (*model.URL, error) {
	rec, err := s.Repo.IncrementClicks(ctx, c)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.Logger.Error("failed to register click", zap.String("code", c), zap.Error(err))
		return nil, fmt.Errorf("failed to register click: %w", err)
	}
	return rec, nil
}

// List возвращает ссылки пользователя (или всех, если opts.All).
func (s *ShortenerService) List(ctx context.Context, opts model.ListOptions) ([]*model.URL, error) {
	opts = opts.Sanitize(s.RecentURLs, s.MaxListLimit)
	if !opts.All && opts.User == "" {
		opts.User = model.DefaultUser
	}

	urls, err := s.Repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	return urls, nil
}

// Delete удаляет запись, если она принадлежит пользователю.
func (s *ShortenerService) Delete(ctx context.Context, c, user string) error {
	if user == "" {
		user = model.DefaultUser
	}

	rec, err := s.Lookup(ctx, c)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.User != user {
		s.Logger.Warn("delete by non-owner rejected", zap.String("code", c), zap.String("user", user))
		return ErrForbidden
	}

	err = s.Repo.Delete(ctx, c, user)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete url: %w", err)
	}
	s.Logger.Info("url deleted", zap.String("code", c), zap.String("user", user))
	return nil
}

// NextCode возвращает код, который фабрика выдаст следующим.
func (s *ShortenerService) NextCode(ctx context.Context) (string, error) {
	return s.Repo.NextCode(ctx)
}

// GetStats возвращает число ссылок и пользователей.
func (s *ShortenerService) GetStats(ctx context.Context) (model.Stats, error) {
	urls, err := s.Repo.CountURLs(ctx)
	if err != nil {
		s.Logger.Error("Failed to retrieve stats", zap.Error(err))
		return model.Stats{}, err
	}
	users, err := s.Repo.CountUsers(ctx)
	if err != nil {
		s.Logger.Error("Failed to retrieve stats", zap.Error(err))
		return model.Stats{}, err
	}
	return model.Stats{URLs: urls, Users: users}, nil
}

// Ping проверяет доступность хранилища.
func (s *ShortenerService) Ping(ctx context.Context) error {
	return s.Repo.Ping(ctx)
}
