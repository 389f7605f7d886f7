package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	// item level errors, the item is skipped and retried on the next run
	ErrTransientItem = errors.New("transient item error")
	ErrSenderInvalid = errors.New("sender address could not be extracted")

	// file level errors
	ErrParse = errors.New("parse error")

	// row level errors
	ErrRowFailed  = errors.New("row failed")
	ErrBulkInsert = errors.New("bulk insert failed")

	// run level errors, abort without advancing the watermark
	ErrConnectivity  = errors.New("connectivity error")
	ErrRunInProgress = errors.New("a sync run is already in progress")
)

// pgconn SQLSTATE class 08 is "connection exception"
const pgConnectionExceptionClass = "08"

// Connectivity wraps err so that IsConnectivity reports true for it.
func Connectivity(err error, message string) error {
	if err == nil {
		return nil
	}
	return &connectivityError{cause: errors.Wrap(err, message)}
}

type connectivityError struct {
	cause error
}

func (e *connectivityError) Error() string {
	return ErrConnectivity.Error() + ": " + e.cause.Error()
}

func (e *connectivityError) Unwrap() []error {
	return []error{ErrConnectivity, e.cause}
}

// IsConnectivity reports whether err means the store or mail source could
// not be reached at all, as opposed to a statement or data failure.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, ErrConnectivity) ||
		stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, net.ErrClosed) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if stderrors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, pgConnectionExceptionClass)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}
