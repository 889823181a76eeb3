package store

import (
	"context"
	"database/sql"
	"fmt"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/violations"
	"minewatch/internal/zones"
)

func insertViolations(ctx context.Context, tx *sql.Tx, records []violations.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO violation_pixels (
            mine_id, date, latitude, longitude, zone_type, area_m2, anomaly_score, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare violation insert: %w", err)
	}
	defer stmt.Close()

	now := timestamp()
	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.MineID,
			r.Date.String(),
			r.Location.Lat,
			r.Location.Lon,
			string(r.ZoneType),
			r.Area,
			r.Score,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert violation %s: %w", r.Date, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// Violations returns stored violation pixels for a mine ordered by date,
// zone type, and location.
func (s *Store) Violations(ctx context.Context, mineID int64, r daterange.Range) ([]violations.Record, error) {
	ctx = ensureContext(ctx)
	where, args := mineRangeClause(mineID, r)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mine_id, date, latitude, longitude, zone_type, area_m2, anomaly_score
           FROM violation_pixels WHERE `+where+`
          ORDER BY date, zone_type, latitude, longitude`,
		args...,
	)
	if err != nil {
		return nil, queryError("violations", err)
	}
	defer rows.Close()

	var out []violations.Record
	for rows.Next() {
		var (
			rec      violations.Record
			dateRaw  string
			zoneType string
		)
		if err := rows.Scan(&rec.MineID, &dateRaw, &rec.Location.Lat, &rec.Location.Lon, &zoneType, &rec.Area, &rec.Score); err != nil {
			return nil, queryError("violations", err)
		}
		if rec.Date, err = daterange.ParseDate(dateRaw); err != nil {
			return nil, queryError("violations", err)
		}
		rec.ZoneType = zones.Type(zoneType)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("violations", err)
	}
	return out, nil
}

func insertAlerts(ctx context.Context, tx *sql.Tx, items []alerts.Alert) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO violation_alerts (
            mine_id, date, zone_type, alert_type, affected_area, streak, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare alert insert: %w", err)
	}
	defer stmt.Close()

	now := timestamp()
	inserted := 0
	for _, a := range items {
		res, err := stmt.ExecContext(ctx,
			a.MineID,
			a.Date.String(),
			string(a.ZoneType),
			string(a.Kind),
			a.AffectedArea,
			a.Streak,
			now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert alert %s: %w", a.Date, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// Alerts returns stored alerts for a mine ordered by date and zone type.
func (s *Store) Alerts(ctx context.Context, mineID int64, r daterange.Range) ([]alerts.Alert, error) {
	ctx = ensureContext(ctx)
	where, args := mineRangeClause(mineID, r)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mine_id, date, zone_type, alert_type, affected_area, streak
           FROM violation_alerts WHERE `+where+`
          ORDER BY date, zone_type`,
		args...,
	)
	if err != nil {
		return nil, queryError("alerts", err)
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		var (
			a        alerts.Alert
			dateRaw  string
			zoneType string
			kind     string
		)
		if err := rows.Scan(&a.MineID, &dateRaw, &zoneType, &kind, &a.AffectedArea, &a.Streak); err != nil {
			return nil, queryError("alerts", err)
		}
		if a.Date, err = daterange.ParseDate(dateRaw); err != nil {
			return nil, queryError("alerts", err)
		}
		a.ZoneType = zones.Type(zoneType)
		a.Kind = alerts.Kind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("alerts", err)
	}
	return out, nil
}
