package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrUniqueViolation は一意制約違反を表す。
// 呼び出し側はerrors.Isで判定し、検証エラーに変換する。
var ErrUniqueViolation = errors.New("unique constraint violation")

// PostgreSQLのunique_violation
const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
