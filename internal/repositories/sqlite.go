package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteColumns = `id, url, code, user_id, clicks, created_at`

var (
	sqliteListAll    = listQueries(`SELECT `+sqliteColumns+` FROM urls WHERE is_deleted = 0`, "", "?", false)
	sqliteListByUser = listQueries(`SELECT `+sqliteColumns+` FROM urls WHERE is_deleted = 0`, "user_id = ?", "?", true)
)

// SQLiteRepository реализует storage.Storage поверх SQLite.
// Ожидает базу, открытую database.OpenSQLite (одно соединение).
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ storage.Storage = (*SQLiteRepository)(nil)

// NewSQLiteRepository создаёт репозиторий поверх открытой базы.
func NewSQLiteRepository(db *sql.DB, logger *zap.Logger) *SQLiteRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteRepository{db: db, logger: logger}
}

// sqlQuerier общий интерфейс *sql.DB и *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSQLiteURL(row rowScanner) (*model.URL, error) {
	var (
		u       model.URL
		id      string
		created int64
	)
	if err := row.Scan(&id, &u.URL, &u.Code, &u.User, &u.Clicks, &created); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad id %q: %w", id, err)
	}
	u.ID = parsed
	u.CreatedAt = time.Unix(0, created).UTC()
	return &u, nil
}

func (r *SQLiteRepository) one(row *sql.Row) (*model.URL, error) {
	u, err := scanSQLiteURL(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return u, nil
}

// EnsureCodeFactory создаёт единственную строку фабрики кодов.
func (r *SQLiteRepository) EnsureCodeFactory(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO code_factory (id, count) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to init code factory: %w", err)
	}
	return nil
}

// NextCode возвращает код, который получит следующая запись.
func (r *SQLiteRepository) NextCode(ctx context.Context) (string, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT count FROM code_factory WHERE id = 1`).Scan(&count); err != nil {
		return "", fmt.Errorf("failed to read code factory: %w", err)
	}
	next, _, err := allocateCode(ctx, count, r.codeTaken(r.db), r.logger)
	return next, err
}

// FindByCode извлекает запись по короткому коду.
func (r *SQLiteRepository) FindByCode(ctx context.Context, c string) (*model.URL, error) {
	return r.one(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM urls WHERE code = ? AND is_deleted = 0`, c))
}

// FindByUserURL извлекает запись пользователя по нормализованному URL.
func (r *SQLiteRepository) FindByUserURL(ctx context.Context, user, url string) (*model.URL, error) {
	return r.one(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM urls WHERE user_id = ? AND url = ? AND is_deleted = 0`, user, url))
}

// CodeExists проверяет занятость кода, включая удалённые записи.
func (r *SQLiteRepository) CodeExists(ctx context.Context, c string) (bool, error) {
	return r.codeTaken(r.db)(ctx, c)
}

func (r *SQLiteRepository) codeTaken(q sqlQuerier) codeChecker {
	return func(ctx context.Context, c string) (bool, error) {
		var exists bool
		err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM urls WHERE code = ?)`, c).Scan(&exists)
		return exists, err
	}
}

// CreateWithCode сохраняет запись с заданным кодом.
func (r *SQLiteRepository) CreateWithCode(ctx context.Context, rec *model.URL) error {
	return r.insert(ctx, r.db, rec)
}

// CreateWithNextCode выдаёт код фабрики и сохраняет запись в одной транзакции.
func (r *SQLiteRepository) CreateWithNextCode(ctx context.Context, rec *model.URL) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT count FROM code_factory WHERE id = 1`).Scan(&count); err != nil {
		return fmt.Errorf("failed to read code factory: %w", err)
	}

	c, next, err := allocateCode(ctx, count, r.codeTaken(tx), r.logger)
	if err != nil {
		return err
	}
	rec.Code = c

	if err := r.insert(ctx, tx, rec); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE code_factory SET count = ? WHERE id = 1`, next); err != nil {
		return fmt.Errorf("failed to advance code factory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) insert(ctx context.Context, q sqlQuerier, rec *model.URL) error {
	res, err := q.ExecContext(ctx, `INSERT INTO urls (id, url, code, user_id, clicks, created_at)
              VALUES (?, ?, ?, ?, 0, ?)
              ON CONFLICT (user_id, url) WHERE is_deleted = 0 DO NOTHING`,
		rec.ID.String(), rec.URL, rec.Code, rec.User, rec.CreatedAt.UnixNano())
	if err != nil {
		if isSQLiteCodeConflict(err) {
			return storage.ErrCodeTaken
		}
		return fmt.Errorf("database insert error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func isSQLiteCodeConflict(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	code := sqErr.Code()
	return (code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) &&
		strings.Contains(sqErr.Error(), "urls.code")
}

// IncrementClicks атомарно увеличивает счётчик переходов.
func (r *SQLiteRepository) IncrementClicks(ctx context.Context, c string) (*model.URL, error) {
	return r.one(r.db.QueryRowContext(ctx, `UPDATE urls SET clicks = clicks + 1
              WHERE code = ? AND is_deleted = 0
              RETURNING `+sqliteColumns, c))
}

// List возвращает записи, отсортированные по проверенной колонке.
func (r *SQLiteRepository) List(ctx context.Context, opts model.ListOptions) ([]*model.URL, error) {
	key := opts.SortColumn + " " + opts.SortOrder

	var (
		rows *sql.Rows
		err  error
	)
	if opts.All {
		q, ok := sqliteListAll[key]
		if !ok {
			return nil, fmt.Errorf("unsupported sort %q", key)
		}
		rows, err = r.db.QueryContext(ctx, q, opts.Limit)
	} else {
		q, ok := sqliteListByUser[key]
		if !ok {
			return nil, fmt.Errorf("unsupported sort %q", key)
		}
		rows, err = r.db.QueryContext(ctx, q, opts.User, opts.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var urls []*model.URL
	for rows.Next() {
		u, err := scanSQLiteURL(rows)
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
func (r *SQLiteRepository) Delete(ctx context.Context, c, user string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE urls SET is_deleted = 1 WHERE code = ? AND user_id = ? AND is_deleted = 0`, c, user)
	if err != nil {
		return fmt.Errorf("failed to delete url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountURLs возвращает количество живых ссылок.
func (r *SQLiteRepository) CountURLs(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM urls WHERE is_deleted = 0`).Scan(&count)
	return count, err
}

// CountUsers возвращает количество пользователей с живыми ссылками.
func (r *SQLiteRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM urls WHERE is_deleted = 0`).Scan(&count)
	return count, err
}

// Ping проверяет доступность базы данных.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

// Close закрывает базу.
func (r *SQLiteRepository) Close() {
	if err := r.db.Close(); err != nil {
		r.logger.Warn("failed to close sqlite", zap.Error(err))
	}
}
