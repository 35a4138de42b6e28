package repositories

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Callers racing on an idempotency key use it to tell "someone
// beat me to it" apart from real failures.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
