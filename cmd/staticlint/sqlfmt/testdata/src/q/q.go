package q

import (
	"context"
	"fmt"
)

type db struct{}

func (db) Exec(ctx context.Context, sql string, args ...any) error  { return nil }
func (db) QueryRow(ctx context.Context, sql string, args ...any) any { return nil }

func Exec(sql string) {}

func use(ctx context.Context, d db, table, user string) {
	_ = d.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)) // want "SQL собран через fmt.Sprintf"
	_ = d.QueryRow(ctx, "SELECT 1 FROM urls WHERE user_id = $1", user)
	_ = d.QueryRow(ctx, "SELECT $1", fmt.Sprintf("%d", 1)) // want "SQL собран через fmt.Sprintf"

	query := fmt.Sprintf("SELECT * FROM %s", table)
	_ = d.Exec(ctx, query)

	Exec(fmt.Sprintf("%s", table))
}
