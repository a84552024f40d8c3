package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/rammfall-education/api-fine/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// transient failures are retried once before surfacing as Conflict
	maxAttempts      = 2
	defaultTxTimeout = 5 * time.Second
	retryBaseDelay   = 20 * time.Millisecond
)

// postgres SQLSTATEs worth one more attempt
var retryableSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// Transactor runs units of work as store transactions. Each attempt is bounded
// by Timeout; a failed attempt rolls back completely.
type Transactor struct {
	db      *gorm.DB
	timeout time.Duration
	logger  *zap.Logger
}

func NewTransactor(db *gorm.DB, timeout time.Duration, logger *zap.Logger) *Transactor {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{db: db, timeout: timeout, logger: logger}
}

// DB returns the handle for reads outside a transaction.
func (t *Transactor) DB(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

// Do runs fn inside a transaction. Classified errors (*apperr.Error) returned by
// fn are final. Transient store errors are retried once; fn must therefore
// re-check every guard it relies on. Anything still failing comes back as
// apperr.KindConflict.
func (t *Transactor) Do(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if serr := sleepWithContext(ctx, exponentialWithJitter(retryBaseDelay, attempt)); serr != nil {
				return apperr.Wrap(apperr.KindConflict, serr, op)
			}
		}

		err = t.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if _, ok := apperr.As(err); ok {
			return err
		}
		if ctx.Err() != nil {
			// the caller gave up; nothing was committed
			return apperr.Wrap(apperr.KindConflict, err, op)
		}
		if !IsTransient(ctx, err) {
			return apperr.Wrap(apperr.KindInternal, err, op)
		}
		t.logger.Warn("transaction attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return apperr.Wrap(apperr.KindConflict, err, op)
}

func (t *Transactor) attempt(ctx context.Context, fn func(tx *gorm.DB) error) error {
	actx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.db.WithContext(actx).Transaction(fn)
}

// IsTransient reports whether err is a store failure that may succeed on retry:
// lock contention, serialization failures, dropped connections, or an attempt
// timeout while the caller's context is still alive.
func IsTransient(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ctx.Err() == nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableSQLStates[pgErr.Code]
	}
	return false
}

// ForUpdate locks the selected rows until the transaction ends on databases with
// row locks. SQLite write transactions are already exclusive (BEGIN IMMEDIATE).
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// IsDuplicate reports a unique constraint violation from either driver.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
