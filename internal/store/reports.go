package store

import (
	"context"
	"database/sql"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/pixels"
	"minewatch/internal/zones"
)

// BandMeans is the mean spectral response of a group of observations.
type BandMeans struct {
	Count int          `json:"count"`
	Mean  pixels.Bands `json:"mean"`
}

// Signature contrasts normal and anomalous observations for one mine.
type Signature struct {
	MineID    int64           `json:"mine_id"`
	Range     daterange.Range `json:"range"`
	Normal    BandMeans       `json:"normal"`
	Anomalous BandMeans       `json:"anomalous"`
}

// SpectralSignature averages the stored bands of normal and anomalous
// observations in r.
func (s *Store) SpectralSignature(ctx context.Context, mineID int64, r daterange.Range) (Signature, error) {
	ctx = ensureContext(ctx)
	where, args := mineRangeClause(mineID, r)
	rows, err := s.db.QueryContext(ctx,
		`SELECT anomaly_label, COUNT(1), AVG(b4), AVG(b8), AVG(b11), AVG(ndvi), AVG(nbr)
           FROM pixel_timeseries WHERE `+where+` AND anomaly_label != 0
          GROUP BY anomaly_label`,
		args...,
	)
	if err != nil {
		return Signature{}, queryError("spectral signature", err)
	}
	defer rows.Close()

	sig := Signature{MineID: mineID, Range: r}
	for rows.Next() {
		var (
			label int
			means BandMeans
		)
		if err := rows.Scan(&label, &means.Count, &means.Mean.B4, &means.Mean.B8, &means.Mean.B11, &means.Mean.NDVI, &means.Mean.NBR); err != nil {
			return Signature{}, queryError("spectral signature", err)
		}
		switch pixels.Label(label) {
		case pixels.LabelAnomalous:
			sig.Anomalous = means
		case pixels.LabelNormal:
			sig.Normal = means
		}
	}
	if err := rows.Err(); err != nil {
		return Signature{}, queryError("spectral signature", err)
	}
	return sig, nil
}

// KPI summarizes stored activity for one mine.
type KPI struct {
	MineID          int64                  `json:"mine_id"`
	Range           daterange.Range        `json:"range"`
	Observations    int                    `json:"observations"`
	Locations       int                    `json:"locations"`
	Anomalous       int                    `json:"anomalous"`
	Excavated       int                    `json:"excavated"`
	ViolationArea   map[zones.Type]float64 `json:"violation_area_m2"`
	ViolationPixels int                    `json:"violation_pixels"`
	Alerts          map[alerts.Kind]int    `json:"alerts"`
	LatestAlert     *daterange.Date        `json:"latest_alert,omitempty"`
}

// ExcavatedArea converts the excavated observation count to square metres.
func (k KPI) ExcavatedArea(pixelArea float64) float64 {
	return float64(k.Excavated) * pixelArea
}

// KPI aggregates observation, violation, and alert counts for a mine in r.
func (s *Store) KPI(ctx context.Context, mineID int64, r daterange.Range) (KPI, error) {
	ctx = ensureContext(ctx)
	where, args := mineRangeClause(mineID, r)
	kpi := KPI{
		MineID:        mineID,
		Range:         r,
		ViolationArea: make(map[zones.Type]float64),
		Alerts:        make(map[alerts.Kind]int),
	}

	var anomalous, excavated sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
                COUNT(DISTINCT latitude || ',' || longitude),
                SUM(CASE WHEN anomaly_label = -1 THEN 1 ELSE 0 END),
                SUM(excavated_flag)
           FROM pixel_timeseries WHERE `+where,
		args...,
	).Scan(&kpi.Observations, &kpi.Locations, &anomalous, &excavated)
	if err != nil {
		return KPI{}, queryError("kpi observations", err)
	}
	kpi.Anomalous = int(anomalous.Int64)
	kpi.Excavated = int(excavated.Int64)

	rows, err := s.db.QueryContext(ctx,
		`SELECT zone_type, COUNT(1), SUM(area_m2) FROM violation_pixels WHERE `+where+` GROUP BY zone_type`,
		args...,
	)
	if err != nil {
		return KPI{}, queryError("kpi violations", err)
	}
	for rows.Next() {
		var (
			zoneType string
			count    int
			area     float64
		)
		if err := rows.Scan(&zoneType, &count, &area); err != nil {
			rows.Close()
			return KPI{}, queryError("kpi violations", err)
		}
		kpi.ViolationArea[zones.Type(zoneType)] = area
		kpi.ViolationPixels += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return KPI{}, queryError("kpi violations", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT alert_type, COUNT(1), MAX(date) FROM violation_alerts WHERE `+where+` GROUP BY alert_type`,
		args...,
	)
	if err != nil {
		return KPI{}, queryError("kpi alerts", err)
	}
	defer rows.Close()
	var latest string
	for rows.Next() {
		var (
			kind    string
			count   int
			lastRaw string
		)
		if err := rows.Scan(&kind, &count, &lastRaw); err != nil {
			return KPI{}, queryError("kpi alerts", err)
		}
		kpi.Alerts[alerts.Kind(kind)] = count
		if lastRaw > latest {
			latest = lastRaw
		}
	}
	if err := rows.Err(); err != nil {
		return KPI{}, queryError("kpi alerts", err)
	}
	if latest != "" {
		d, err := daterange.ParseDate(latest)
		if err != nil {
			return KPI{}, queryError("kpi alerts", err)
		}
		kpi.LatestAlert = &d
	}
	return kpi, nil
}
