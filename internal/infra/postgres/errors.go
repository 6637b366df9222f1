package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// transientCodes are SQLSTATEs worth retrying.
var transientCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// IsTransient reports whether err is a connectivity, timeout or
// serialization failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// The caller gave up; retrying cannot help.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		_, ok := transientCodes[pgErr.Code]
		return ok
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify tags transient errors with domain.ErrTransientStorage.
func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrTransientStorage) {
		return err
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransientStorage, err)
	}
	return err
}
