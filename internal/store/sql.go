package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore implements Store on SQLite (single writer) or PostgreSQL (row locks).
type SQLStore struct {
	queries
	db  *sqlx.DB
	log *logrus.Entry
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database, configures the driver and runs migrations.
func Open(ctx context.Context, driver, dsn string, log *logrus.Entry) (*SQLStore, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One connection serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
			}
		}
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("driver", driver).Info("store opened")
	return NewSQLStore(db, log), nil
}

// sqliteDSN makes every transaction take the write lock at BEGIN.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate"
}

// NewSQLStore wraps an already migrated connection pool.
func NewSQLStore(db *sqlx.DB, log *logrus.Entry) *SQLStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SQLStore{
		queries: queries{q: db, lockRows: db.DriverName() == DriverPostgres},
		db:      db,
		log:     log,
	}
}

// WithTx runs fn inside one database transaction. fn's error, or a panic,
// rolls back every write it made.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.WithError(rbErr).Warn("rollback failed")
			}
		}
	}()

	if err = fn(&sqlTx{queries: queries{q: tx, lockRows: s.lockRows}}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	s.log.Info("closing store")
	return s.db.Close()
}

type sqlTx struct {
	queries
}

var _ Tx = (*sqlTx)(nil)
