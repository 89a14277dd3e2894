package gormstore

import (
	"errors"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/claimledger/pkg/claims"
)

const (
	constraintClaimsTurnover = "uniq_claims_turnover"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19

	errorOperationStore = "store"

	errorCodeCreate  = "create"
	errorCodeDelete  = "delete"
	errorCodeGet     = "get"
	errorCodeInsert  = "insert"
	errorCodeInvalid = "invalid"
	errorCodeList    = "list"
	errorCodeLookup  = "lookup"
	errorCodeSum     = "sum"
	errorCodeUpdate  = "update"
	errorCodeUpsert  = "upsert"
)

func wrapStoreError(subject string, code string, err error) error {
	return claims.WrapError(errorOperationStore, subject, code, err)
}

// isUniqueViolation detects a unique constraint race on either backend.
// constraint narrows the check on postgres; sqlite reports only the class.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if constraint == "" {
			return pgErr.Code == pgUniqueViolationCode
		}
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
