package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendSample appends one arrival sample. The collector is the only writer.
func (s *Store) AppendSample(ctx context.Context, sample Sample) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bus_arrivals(stop_code, service, eta_min, vehicle_type, captured_at)
		VALUES (?, ?, ?, ?, ?)`),
		sample.StopCode, sample.Service, sample.ETAMinutes, sample.VehicleType, sample.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("appending sample for stop %s service %s: %w", sample.StopCode, sample.Service, err)
	}
	return nil
}

// LatestSamples returns the most recent sample per (stop, service). Used to
// seed the collector's change-detection map at startup.
func (s *Store) LatestSamples(ctx context.Context) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stop_code, service, eta_min, vehicle_type, captured_at
		FROM bus_arrivals
		WHERE id IN (SELECT MAX(id) FROM bus_arrivals GROUP BY stop_code, service)`)
	if err != nil {
		return nil, fmt.Errorf("querying latest samples: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

// SamplesSince returns samples captured at or after the given time, oldest
// first. Empty stopCode or service leaves that filter off.
func (s *Store) SamplesSince(ctx context.Context, stopCode, service string, since time.Time) ([]Sample, error) {
	query := `
		SELECT id, stop_code, service, eta_min, vehicle_type, captured_at
		FROM bus_arrivals
		WHERE captured_at >= ?`
	args := []interface{}{since.UTC()}

	if stopCode != "" {
		query += ` AND stop_code = ?`
		args = append(args, stopCode)
	}
	if service != "" {
		query += ` AND service = ?`
		args = append(args, service)
	}
	query += ` ORDER BY stop_code, service, captured_at, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

// DeleteSamplesBefore removes samples captured before the cutoff and returns
// how many were deleted.
func (s *Store) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM bus_arrivals WHERE captured_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading deleted row count: %w", err)
	}
	return n, nil
}

// CountSamples returns the total number of stored samples.
func (s *Store) CountSamples(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bus_arrivals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return n, nil
}

func scanSamples(rows *sql.Rows) ([]Sample, error) {
	var samples []Sample
	for rows.Next() {
		var sample Sample
		if err := rows.Scan(&sample.ID, &sample.StopCode, &sample.Service,
			&sample.ETAMinutes, &sample.VehicleType, &sample.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}
