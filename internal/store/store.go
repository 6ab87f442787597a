// Package store is the gorm-backed session store and user registry.
//
// All timestamps are written in UTC truncated to the second, so range
// predicates compare consistently on every supported driver.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"epoch/internal/logger"
	"epoch/internal/model"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous match")
)

// AmbiguousError is returned when a day-targeted correction matches more
// than one session log.
type AmbiguousError struct {
	IDs []int64
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous match: session logs %v", e.IDs)
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// do runs fn once, and once more after a successful ping when the first
// attempt failed on a broken connection. fn must be safe to repeat.
func (s *Store) do(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	run := func() (bool, error) { return true, fn(s.db.WithContext(ctx)) }
	return s.retry(ctx, op, run)
}

// atomic runs fn in a transaction. A broken connection is retried only if
// it broke before the commit was sent.
func (s *Store) atomic(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	run := func() (bool, error) {
		committing := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := fn(tx); err != nil {
				return err
			}
			committing = true
			return nil
		})
		return !committing, err
	}
	return s.retry(ctx, op, run)
}

func (s *Store) retry(ctx context.Context, op string, run func() (bool, error)) error {
	repeatable, err := run()
	if err != nil && repeatable && isConnErr(ctx, err) {
		logger.WarnContext(ctx, "store.reconnect", "op", op, "err", err)
		if perr := s.Ping(ctx); perr == nil {
			_, err = run()
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isConnErr(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, gomysql.ErrInvalidConn) ||
		errors.As(err, &netErr)
}

func ts(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }

// dayRange returns [00:00, next 00:00) of day in UTC.
func dayRange(day time.Time) (time.Time, time.Time) {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// MonthRange returns the calendar month containing t, in UTC.
func MonthRange(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
