package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Totarae/firefly/internal/database"
	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

const pgColumns = `id, url, code, user_id, clicks, created_at`

var (
	pgListAll    = listQueries(`SELECT `+pgColumns+` FROM urls WHERE NOT is_deleted`, "", "$1", false)
	pgListByUser = listQueries(`SELECT `+pgColumns+` FROM urls WHERE NOT is_deleted`, "user_id = $2", "$1", true)
)

// URLRepository реализует storage.Storage с использованием PostgreSQL.
type URLRepository struct {
	DB     *database.DB
	logger *zap.Logger
}

var _ storage.Storage = (*URLRepository)(nil)

// NewURLRepository создаёт новый экземпляр URLRepository.
func NewURLRepository(db *database.DB) *URLRepository {
	logger := db.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLRepository{DB: db, logger: logger}
}

// pgQuerier общий интерфейс пула и транзакции.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPgURL(row rowScanner) (*model.URL, error) {
	u := &model.URL{}
	if err := row.Scan(&u.ID, &u.URL, &u.Code, &u.User, &u.Clicks, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// EnsureCodeFactory создаёт единственную строку фабрики кодов.
// Повторные и параллельные вызовы безопасны благодаря первичному ключу.
func (r *URLRepository) EnsureCodeFactory(ctx context.Context) error {
	_, err := r.DB.Pool.Exec(ctx, `INSERT INTO code_factory (id, count) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to init code factory: %w", err)
	}
	return nil
}

// NextCode возвращает код, который получит следующая запись.
func (r *URLRepository) NextCode(ctx context.Context) (string, error) {
	var count int64
	err := r.DB.Pool.QueryRow(ctx, `SELECT count FROM code_factory WHERE id = 1`).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("failed to read code factory: %w", err)
	}
	next, _, err := allocateCode(ctx, count, r.codeTaken(r.DB.Pool), r.logger)
	return next, err
}

// FindByCode извлекает запись по короткому коду.
func (r *URLRepository) FindByCode(ctx context.Context, c string) (*model.URL, error) {
	row := r.DB.Pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM urls WHERE code = $1 AND NOT is_deleted`, c)
	return r.one(row)
}

// FindByUserURL извлекает запись пользователя по нормализованному URL.
func (r *URLRepository) FindByUserURL(ctx context.Context, user, url string) (*model.URL, error) {
	row := r.DB.Pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM urls WHERE user_id = $1 AND url = $2 AND NOT is_deleted`, user, url)
	return r.one(row)
}

func (r *URLRepository) one(row pgx.Row) (*model.URL, error) {
	u, err := scanPgURL(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return u, nil
}

// CodeExists проверяет занятость кода, включая удалённые записи.
func (r *URLRepository) CodeExists(ctx context.Context, c string) (bool, error) {
	return r.codeTaken(r.DB.Pool)(ctx, c)
}

func (r *URLRepository) codeTaken(q pgQuerier) codeChecker {
	return func(ctx context.Context, c string) (bool, error) {
		var exists bool
		err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM urls WHERE code = $1)`, c).Scan(&exists)
		return exists, err
	}
}

// CreateWithCode сохраняет запись с заданным кодом.
func (r *URLRepository) CreateWithCode(ctx context.Context, rec *model.URL) error {
	return r.insert(ctx, r.DB.Pool, rec)
}

// CreateWithNextCode выдаёт код фабрики и сохраняет запись в одной транзакции.
// Строка фабрики блокируется до коммита, поэтому параллельные запросы
// получают разные коды.
func (r *URLRepository) CreateWithNextCode(ctx context.Context, rec *model.URL) error {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int64
	if err := tx.QueryRow(ctx, `SELECT count FROM code_factory WHERE id = 1 FOR UPDATE`).Scan(&count); err != nil {
		return fmt.Errorf("failed to lock code factory: %w", err)
	}

	c, next, err := allocateCode(ctx, count, r.codeTaken(tx), r.logger)
	if err != nil {
		return err
	}
	rec.Code = c

	if err := r.insert(ctx, tx, rec); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE code_factory SET count = $1 WHERE id = 1`, next); err != nil {
		return fmt.Errorf("failed to advance code factory: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *URLRepository) insert(ctx context.Context, q pgQuerier, rec *model.URL) error {
	tag, err := q.Exec(ctx, `INSERT INTO urls (id, url, code, user_id, clicks, created_at)
              VALUES ($1, $2, $3, $4, 0, $5)
              ON CONFLICT (user_id, url) WHERE NOT is_deleted DO NOTHING`,
		rec.ID, rec.URL, rec.Code, rec.User, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "urls_code_key" {
			return storage.ErrCodeTaken
		}
		return fmt.Errorf("database insert error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

// IncrementClicks атомарно увеличивает счётчик переходов.
func (r *URLRepository) IncrementClicks(ctx context.Context, c string) (*model.URL, error) {
	row := r.DB.Pool.QueryRow(ctx, `UPDATE urls SET clicks = clicks + 1
              WHERE code = $1 AND NOT is_deleted
              RETURNING `+pgColumns, c)
	return r.one(row)
}

// List возвращает записи, отсортированные по проверенной колонке.
func (r *URLRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.URL, error) {
	key := opts.SortColumn + " " + opts.SortOrder

	var (
		rows pgx.Rows
		err  error
	)
	if opts.All {
		q, ok := pgListAll[key]
		if !ok {
			return nil, fmt.Errorf("unsupported sort %q", key)
		}
		rows, err = r.DB.Pool.Query(ctx, q, opts.Limit)
	} else {
		q, ok := pgListByUser[key]
		if !ok {
			return nil, fmt.Errorf("unsupported sort %q", key)
		}
		rows, err = r.DB.Pool.Query(ctx, q, opts.Limit, opts.User)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var urls []*model.URL
	for rows.Next() {
		u, err := scanPgURL(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return urls, nil
}

// Delete помечает запись пользователя удалённой. Код остаётся занятым.
func (r *URLRepository) Delete(ctx context.Context, c, user string) error {
	tag, err := r.DB.Pool.Exec(ctx,
		`UPDATE urls SET is_deleted = TRUE WHERE code = $1 AND user_id = $2 AND NOT is_deleted`, c, user)
	if err != nil {
		return fmt.Errorf("failed to delete url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountURLs возвращает количество живых ссылок.
func (r *URLRepository) CountURLs(ctx context.Context) (int, error) {
	var count int
	err := r.DB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM urls WHERE NOT is_deleted`).Scan(&count)
	return count, err
}

// CountUsers возвращает количество пользователей с живыми ссылками.
func (r *URLRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.DB.Pool.QueryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM urls WHERE NOT is_deleted`).Scan(&count)
	return count, err
}

// Ping проверяет доступность базы данных.
func (r *URLRepository) Ping(ctx context.Context) error {
	return r.DB.Ping(ctx)
}

// Close закрывает пул соединений.
func (r *URLRepository) Close() {
	r.DB.Close()
}
