package dbclient

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"modernc.org/sqlite"

	"tabledash/internal/domain"
)

// mongo server codes that mean the document itself was refused.
var mongoValidationCodes = []int{
	2,     // BadValue
	14,    // TypeMismatch
	52,    // DollarPrefixedFieldName
	121,   // DocumentValidationFailure
	11000, // DuplicateKey
}

// mysql error numbers that mean the row was refused.
var mysqlValidationNumbers = map[uint16]bool{
	1048: true, // column cannot be null
	1054: true, // unknown column: not a document table
	1062: true, // duplicate entry
	1366: true, // incorrect value
	1406: true, // data too long
	3140: true, // invalid JSON text
	3819: true, // check constraint violated
}

// classify maps a raw driver error onto one of the domain error kinds.
// Anything not recognisably a data rejection is treated as a transport failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.KindOf(err) != nil:
		return domain.KindOf(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.ErrConnection
	case errors.Is(err, mongo.ErrClientDisconnected), mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return domain.ErrConnection
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, mysql.ErrInvalidConn):
		return domain.ErrConnection
	}

	var we mongo.WriteException
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		return domain.ErrValidation
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		return domain.ErrValidation
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range mongoValidationCodes {
			if se.HasErrorCode(code) {
				return domain.ErrValidation
			}
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42P01": // undefined table
			return domain.ErrNotFound
		case pqErr.Code == "42703": // undefined column: not a document table
			return domain.ErrValidation
		case pqErr.Code.Class() == "22", pqErr.Code.Class() == "23": // data exception, integrity constraint violation
			return domain.ErrValidation
		}
		return domain.ErrConnection
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == 1146 { // table doesn't exist
			return domain.ErrNotFound
		}
		if mysqlValidationNumbers[myErr.Number] {
			return domain.ErrValidation
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case 19, 20: // SQLITE_CONSTRAINT, SQLITE_MISMATCH
			return domain.ErrValidation
		case 1: // SQLITE_ERROR: schema problems are reported by message only
			msg := liteErr.Error()
			if strings.Contains(msg, "no such column") {
				return domain.ErrValidation
			}
			if strings.Contains(msg, "no such table") {
				return domain.ErrNotFound
			}
		}
	}
	return domain.ErrConnection
}

// wrap classifies err and attaches the operation and target.
func wrap(op string, h domain.Handle, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewStoreError(op, h, classify(err), err)
}
