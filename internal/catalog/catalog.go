// Package catalog is the SQL-backed program guide and rule store.
//
// It runs on SQLite (modernc.org/sqlite) or PostgreSQL (pgx stdlib) through
// database/sql. Column filters are pushed into SQL; keyword, weekday and
// time-of-day filters are applied in Go by rule.Matcher.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	logx "recsched/pkg/logx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Config selects the database.
//
// Driver values:
//   - "sqlite" (default): DSN is a file path
//   - "postgres": DSN is a libpq/pgx connection string
type Config struct {
	Driver string
	DSN    string
	// Location is used for weekday and hour filters; nil means time.Local.
	Location *time.Location
}

type Store struct {
	db       *sql.DB
	log      logx.Logger
	postgres bool
	loc      *time.Location

	now func() time.Time
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("catalog.dsn is required")
	}

	var (
		db  *sql.DB
		err error
		pg  bool
	)
	switch driver {
	case "", "sqlite", "sqlite3":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, err
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
		_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	case "postgres", "postgresql", "pgx":
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(time.Minute)
		pg = true
	default:
		return nil, errors.New("unknown catalog driver: " + driver)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Store{
		db:       db,
		log:      log.With(logx.Component("catalog")),
		postgres: pg,
		loc:      loc,
		now:      time.Now,
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
