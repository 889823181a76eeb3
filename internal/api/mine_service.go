package api

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/mines"
	"minewatch/internal/pixels"
	"minewatch/internal/store"
	"minewatch/internal/violations"
	"minewatch/internal/zones"
)

// MineReader abstracts the store queries needed for mine endpoints.
type MineReader interface {
	Observations(ctx context.Context, mineID int64, r daterange.Range) ([]pixels.Observation, error)
	Violations(ctx context.Context, mineID int64, r daterange.Range) ([]violations.Record, error)
	Alerts(ctx context.Context, mineID int64, r daterange.Range) ([]alerts.Alert, error)
	SpectralSignature(ctx context.Context, mineID int64, r daterange.Range) (store.Signature, error)
	KPI(ctx context.Context, mineID int64, r daterange.Range) (store.KPI, error)
}

// MineCatalog resolves mine identifiers.
type MineCatalog interface {
	Lookup(id int64) (mines.Mine, error)
}

// MineService exposes read-only mine queries returning API DTOs.
type MineService struct {
	catalog     MineCatalog
	store       MineReader
	synthesizer zones.Synthesizer
	pixelArea   float64
}

// NewMineService constructs a MineService. synth is used for on-demand zone
// rendering and pixelArea for excavated area in KPIs.
func NewMineService(catalog MineCatalog, reader MineReader, synth zones.Synthesizer, pixelArea float64) *MineService {
	if catalog == nil || reader == nil {
		return nil
	}
	if pixelArea <= 0 {
		pixelArea = violations.DefaultPixelArea
	}
	return &MineService{catalog: catalog, store: reader, synthesizer: synth, pixelArea: pixelArea}
}

// Mine returns the catalog feature for id.
func (s *MineService) Mine(id int64) (*geojson.Feature, error) {
	mine, err := s.catalog.Lookup(id)
	if err != nil {
		return nil, err
	}
	return mine.Feature(), nil
}

// Pixels lists stored observations for a mine.
func (s *MineService) Pixels(ctx context.Context, id int64, r daterange.Range) (PixelsResponse, error) {
	if _, err := s.catalog.Lookup(id); err != nil {
		return PixelsResponse{}, err
	}
	obs, err := s.store.Observations(ctx, id, r)
	if err != nil {
		return PixelsResponse{}, err
	}
	return PixelsResponse{MineID: id, Window: FromRange(r), Pixels: FromObservations(obs)}, nil
}

// Violations lists stored violation records for a mine.
func (s *MineService) Violations(ctx context.Context, id int64, r daterange.Range) (ViolationsResponse, error) {
	if _, err := s.catalog.Lookup(id); err != nil {
		return ViolationsResponse{}, err
	}
	records, err := s.store.Violations(ctx, id, r)
	if err != nil {
		return ViolationsResponse{}, err
	}
	return ViolationsResponse{MineID: id, Window: FromRange(r), Violations: FromViolations(records)}, nil
}

// Alerts lists stored alerts for a mine.
func (s *MineService) Alerts(ctx context.Context, id int64, r daterange.Range) (AlertsResponse, error) {
	if _, err := s.catalog.Lookup(id); err != nil {
		return AlertsResponse{}, err
	}
	items, err := s.store.Alerts(ctx, id, r)
	if err != nil {
		return AlertsResponse{}, err
	}
	return AlertsResponse{MineID: id, Window: FromRange(r), Alerts: FromAlerts(items)}, nil
}

// Signature compares normal and anomalous band means.
func (s *MineService) Signature(ctx context.Context, id int64, r daterange.Range) (SignatureResponse, error) {
	if _, err := s.catalog.Lookup(id); err != nil {
		return SignatureResponse{}, err
	}
	sig, err := s.store.SpectralSignature(ctx, id, r)
	if err != nil {
		return SignatureResponse{}, err
	}
	return FromSignature(sig), nil
}

// KPI summarizes monitoring indicators.
func (s *MineService) KPI(ctx context.Context, id int64, r daterange.Range) (KPIResponse, error) {
	if _, err := s.catalog.Lookup(id); err != nil {
		return KPIResponse{}, err
	}
	kpi, err := s.store.KPI(ctx, id, r)
	if err != nil {
		return KPIResponse{}, err
	}
	return FromKPI(kpi, s.pixelArea), nil
}

// Zones synthesizes protected zones from stored observations in r and
// renders them as GeoJSON. No stored observations yields an empty collection.
func (s *MineService) Zones(ctx context.Context, id int64, r daterange.Range) (*geojson.FeatureCollection, error) {
	if _, err := s.catalog.Lookup(id); err != nil {
		return nil, err
	}
	obs, err := s.store.Observations(ctx, id, r)
	if err != nil {
		return nil, err
	}
	return zones.FeatureCollection(s.synthesizer.Synthesize(obs)), nil
}
