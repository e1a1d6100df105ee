package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertStops writes the given stops in one transaction, replacing rows that
// already exist.
func (s *Store) UpsertStops(ctx context.Context, stops []Stop) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO bus_stops(code, name, road, lat, lon)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			road = excluded.road,
			lat = excluded.lat,
			lon = excluded.lon`))
	if err != nil {
		return fmt.Errorf("preparing stop upsert: %w", err)
	}
	defer stmt.Close()

	for _, stop := range stops {
		if _, err := stmt.ExecContext(ctx, stop.Code, stop.Name, stop.Road, stop.Lat, stop.Lon); err != nil {
			return fmt.Errorf("upserting stop %s: %w", stop.Code, err)
		}
	}

	return tx.Commit()
}

// UpsertRouteEdges writes the given route edges in one transaction.
func (s *Store) UpsertRouteEdges(ctx context.Context, edges []RouteEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO bus_routes(service, direction, sequence, stop_code, distance_km)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(service, direction, sequence, stop_code) DO UPDATE SET
			distance_km = excluded.distance_km`))
	if err != nil {
		return fmt.Errorf("preparing route upsert: %w", err)
	}
	defer stmt.Close()

	for _, edge := range edges {
		if _, err := stmt.ExecContext(ctx, edge.Service, edge.Direction, edge.Sequence, edge.StopCode, edge.DistanceKM); err != nil {
			return fmt.Errorf("upserting route edge %s/%d/%d: %w", edge.Service, edge.Direction, edge.Sequence, err)
		}
	}

	return tx.Commit()
}

func (s *Store) CountStops(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bus_stops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting stops: %w", err)
	}
	return n, nil
}

func (s *Store) CountRouteEdges(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bus_routes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting route edges: %w", err)
	}
	return n, nil
}

// StopCodes returns every known stop code, ordered for deterministic cycles.
func (s *Store) StopCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM bus_stops ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("querying stop codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning stop code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// SearchStops returns stops whose code, name, or road contains the query,
// case-insensitively. An empty query returns all stops.
func (s *Store) SearchStops(ctx context.Context, query string) ([]Stop, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if q := strings.TrimSpace(query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		rows, err = s.db.QueryContext(ctx, s.rebind(`
			SELECT code, name, road, lat, lon FROM bus_stops
			WHERE LOWER(name) LIKE ? OR LOWER(road) LIKE ? OR code LIKE ?
			ORDER BY code`), like, like, like)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT code, name, road, lat, lon FROM bus_stops ORDER BY code`)
	}
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	var stops []Stop
	for rows.Next() {
		var stop Stop
		if err := rows.Scan(&stop.Code, &stop.Name, &stop.Road, &stop.Lat, &stop.Lon); err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, stop)
	}
	return stops, rows.Err()
}

// StopExists reports whether a stop code is known.
func (s *Store) StopExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM bus_stops WHERE code = ?`), code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking stop %s: %w", code, err)
	}
	return n > 0, nil
}

// AllRouteEdges returns every route edge in feed order.
func (s *Store) AllRouteEdges(ctx context.Context) ([]RouteEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service, direction, sequence, stop_code, distance_km
		FROM bus_routes
		ORDER BY service, direction, sequence`)
	if err != nil {
		return nil, fmt.Errorf("querying route edges: %w", err)
	}
	defer rows.Close()

	var edges []RouteEdge
	for rows.Next() {
		var edge RouteEdge
		if err := rows.Scan(&edge.Service, &edge.Direction, &edge.Sequence, &edge.StopCode, &edge.DistanceKM); err != nil {
			return nil, fmt.Errorf("scanning route edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// SetRefreshedAt records when a named sync last completed.
func (s *Store) SetRefreshedAt(ctx context.Context, name string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sync_state(name, refreshed_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET refreshed_at = excluded.refreshed_at`), name, t.UTC())
	if err != nil {
		return fmt.Errorf("recording refresh time for %s: %w", name, err)
	}
	return nil
}

// RefreshedAt returns when a named sync last completed; the zero time when it
// never has.
func (s *Store) RefreshedAt(ctx context.Context, name string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT refreshed_at FROM sync_state WHERE name = ?`), name).Scan(&t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("reading refresh time for %s: %w", name, err)
	}
	return t, nil
}
