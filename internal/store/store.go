// Package store is the relational storage layer shared by the topology sync,
// the live arrival collector, and the read-side consumers. It runs on either
// a file-based SQLite database (default) or a Postgres server, selected by
// configuration.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/bustracker-data/internal/common/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Stop is a physical bus stop, identified by a stable code.
type Stop struct {
	Code string
	Name string
	Road string
	Lat  float64
	Lon  float64
}

// RouteEdge is one stop's position along one directional variant of one
// service.
type RouteEdge struct {
	Service    string
	Direction  int
	Sequence   int
	StopCode   string
	DistanceKM float64
}

// Sample is one live ETA observation.
type Sample struct {
	ID          int64
	StopCode    string
	Service     string
	ETAMinutes  float64
	VehicleType string
	CapturedAt  time.Time
}

type Store struct {
	db     *sql.DB
	driver string
	logger logger.Logger
}

// Open connects to the configured backend and bootstraps the schema.
func Open(driver, dsn string, log logger.Logger) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: conn, driver: driver, logger: log}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	log.Info("Database connection established", "driver", driver)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) initSchema() error {
	arrivalsTable := `
		CREATE TABLE IF NOT EXISTS bus_arrivals(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stop_code TEXT NOT NULL,
			service TEXT NOT NULL,
			eta_min REAL NOT NULL,
			vehicle_type TEXT NOT NULL,
			captured_at TIMESTAMP NOT NULL
		)`
	if s.driver == DriverPostgres {
		arrivalsTable = `
		CREATE TABLE IF NOT EXISTS bus_arrivals(
			id BIGSERIAL PRIMARY KEY,
			stop_code TEXT NOT NULL,
			service TEXT NOT NULL,
			eta_min DOUBLE PRECISION NOT NULL,
			vehicle_type TEXT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL
		)`
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS bus_stops(
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			road TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bus_routes(
			service TEXT NOT NULL,
			direction INTEGER NOT NULL,
			sequence INTEGER NOT NULL,
			stop_code TEXT NOT NULL,
			distance_km REAL NOT NULL,
			PRIMARY KEY(service, direction, sequence, stop_code)
		)`,
		arrivalsTable,
		`CREATE INDEX IF NOT EXISTS idx_bus_arrivals_lookup
			ON bus_arrivals(stop_code, service, captured_at)`,
		`CREATE TABLE IF NOT EXISTS sync_state(
			name TEXT PRIMARY KEY,
			refreshed_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres. Queries in this package
// are written with ? placeholders.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
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
