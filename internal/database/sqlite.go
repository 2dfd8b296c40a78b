package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath путь, при котором SQLite работает целиком в памяти.
const MemoryPath = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS code_factory (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0)
);

CREATE TABLE IF NOT EXISTS urls (
    id         TEXT    PRIMARY KEY,
    url        TEXT    NOT NULL,
    code       TEXT    NOT NULL,
    user_id    TEXT    NOT NULL DEFAULT 'default user',
    clicks     INTEGER NOT NULL DEFAULT 0 CHECK (clicks >= 0),
    created_at INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS urls_code_key ON urls (code);
CREATE UNIQUE INDEX IF NOT EXISTS urls_user_url_key ON urls (user_id, url) WHERE is_deleted = 0;
CREATE INDEX IF NOT EXISTS urls_created_at_idx ON urls (created_at);
`

// OpenSQLite открывает базу SQLite и создаёт схему.
//
// Соединение одно: все запись и чтение проходят последовательно, это и
// обеспечивает атомарность выдачи кодов.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	if path == MemoryPath || path == "" {
		return "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
