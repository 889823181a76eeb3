package store

import (
	"context"
	"database/sql"
	"fmt"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/pixels"
	"minewatch/internal/violations"
)

// Counts reports rows actually inserted; rows skipped by a uniqueness
// constraint are not counted.
type Counts struct {
	Observations int `json:"observations"`
	Violations   int `json:"violations"`
	Alerts       int `json:"alerts"`
}

// Add returns the element-wise sum of c and other.
func (c Counts) Add(other Counts) Counts {
	return Counts{
		Observations: c.Observations + other.Observations,
		Violations:   c.Violations + other.Violations,
		Alerts:       c.Alerts + other.Alerts,
	}
}

const observationColumns = "mine_id, date, latitude, longitude, b4, b8, b11, ndvi, nbr, anomaly_label, anomaly_score, excavated_flag"

// ExistingRange returns the earliest and latest stored observation dates for
// a mine, or nil when nothing is stored.
func (s *Store) ExistingRange(ctx context.Context, mineID int64) (*daterange.Range, error) {
	ctx = ensureContext(ctx)
	var minRaw, maxRaw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM pixel_timeseries WHERE mine_id = ?`, mineID,
	).Scan(&minRaw, &maxRaw)
	if err != nil {
		return nil, queryError("existing range", err)
	}
	if !minRaw.Valid || !maxRaw.Valid {
		return nil, nil
	}
	start, err := daterange.ParseDate(minRaw.String)
	if err != nil {
		return nil, queryError("existing range", err)
	}
	end, err := daterange.ParseDate(maxRaw.String)
	if err != nil {
		return nil, queryError("existing range", err)
	}
	return &daterange.Range{Start: start, End: end}, nil
}

// Batch is everything one resolved range contributes to the store.
type Batch struct {
	Observations []pixels.Observation
	Violations   []violations.Record
	Alerts       []alerts.Alert
}

// SaveBatch inserts a range's observations, violation records, and alerts in
// a single transaction. Rows whose natural key already exists are ignored.
// On error nothing from the batch is committed.
func (s *Store) SaveBatch(ctx context.Context, b Batch) (Counts, error) {
	var counts Counts
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		counts = Counts{}
		n, err := insertObservations(ctx, tx, b.Observations)
		if err != nil {
			return err
		}
		counts.Observations = n
		if counts.Violations, err = insertViolations(ctx, tx, b.Violations); err != nil {
			return err
		}
		if counts.Alerts, err = insertAlerts(ctx, tx, b.Alerts); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Counts{}, persistenceError("save batch", err)
	}
	return counts, nil
}

func insertObservations(ctx context.Context, tx *sql.Tx, obs []pixels.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO pixel_timeseries (
            `+observationColumns+`, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	now := timestamp()
	inserted := 0
	for _, o := range obs {
		res, err := stmt.ExecContext(ctx,
			o.MineID,
			o.Date.String(),
			o.Location.Lat,
			o.Location.Lon,
			o.Bands.B4,
			o.Bands.B8,
			o.Bands.B11,
			o.Bands.NDVI,
			o.Bands.NBR,
			int(o.Label),
			o.Score,
			boolToInt(o.Excavated),
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert observation %s: %w", o.Date, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// Observations returns stored observations for a mine ordered by date then
// location. A zero range returns every stored observation.
func (s *Store) Observations(ctx context.Context, mineID int64, r daterange.Range) ([]pixels.Observation, error) {
	ctx = ensureContext(ctx)
	where, args := mineRangeClause(mineID, r)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+observationColumns+` FROM pixel_timeseries WHERE `+where+` ORDER BY date, latitude, longitude`,
		args...,
	)
	if err != nil {
		return nil, queryError("observations", err)
	}
	defer rows.Close()

	var out []pixels.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, queryError("observations", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("observations", err)
	}
	return out, nil
}

func scanObservation(scanner interface{ Scan(dest ...any) error }) (pixels.Observation, error) {
	var (
		o         pixels.Observation
		dateRaw   string
		label     int
		excavated int
	)
	if err := scanner.Scan(
		&o.MineID,
		&dateRaw,
		&o.Location.Lat,
		&o.Location.Lon,
		&o.Bands.B4,
		&o.Bands.B8,
		&o.Bands.B11,
		&o.Bands.NDVI,
		&o.Bands.NBR,
		&label,
		&o.Score,
		&excavated,
	); err != nil {
		return pixels.Observation{}, err
	}
	date, err := daterange.ParseDate(dateRaw)
	if err != nil {
		return pixels.Observation{}, err
	}
	o.Date = date
	o.Label = pixels.Label(label)
	o.Excavated = excavated != 0
	return o, nil
}

// mineRangeClause builds the WHERE clause shared by the per-mine listings.
func mineRangeClause(mineID int64, r daterange.Range) (string, []any) {
	where := "mine_id = ?"
	args := []any{mineID}
	if !r.Start.IsZero() {
		where += " AND date >= ?"
		args = append(args, r.Start.String())
	}
	if !r.End.IsZero() {
		where += " AND date <= ?"
		args = append(args, r.End.String())
	}
	return where, args
}
