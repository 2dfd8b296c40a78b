package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Totarae/firefly/internal/code"
	"github.com/Totarae/firefly/internal/model"
	"go.uber.org/zap"
)

var errCounterOverflow = errors.New("code factory counter overflow")

// codeChecker проверяет, занят ли код, в рамках текущей транзакции.
type codeChecker func(ctx context.Context, code string) (bool, error)

// allocateCode возвращает первый свободный код, начиная с позиции count,
// и новое значение счётчика. Занятые коды пропускаются.
func allocateCode(ctx context.Context, count int64, taken codeChecker, logger *zap.Logger) (string, int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		if count < 0 {
			return "", 0, errCounterOverflow
		}

		candidate := code.Encode(uint64(count))
		count++

		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", 0, fmt.Errorf("failed to check code %q: %w", candidate, err)
		}
		if !exists {
			return candidate, count, nil
		}
		logger.Debug("code already taken, skipping", zap.String("code", candidate))
	}
}

// listQueries строит запросы списка для каждой допустимой пары колонка/направление.
// Имена колонок в ORDER BY берутся только из этой таблицы.
func listQueries(base, userPredicate, limitPlaceholder string, withUser bool) map[string]string {
	queries := make(map[string]string)
	for _, col := range model.SortColumns() {
		for _, order := range []string{model.OrderAsc, model.OrderDesc} {
			q := base
			if withUser {
				q += " AND " + userPredicate
			}
			q += " ORDER BY " + col + " " + order + ", code " + order + " LIMIT " + limitPlaceholder
			queries[col+" "+order] = q
		}
	}
	return queries
}
