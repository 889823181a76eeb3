package api

import (
	"slices"
	"time"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/pipeline"
	"minewatch/internal/pixels"
	"minewatch/internal/store"
	"minewatch/internal/violations"
	"minewatch/internal/workflow"
)

// ToRequest validates the DTO into a pipeline request.
func (r PipelineRequest) ToRequest() (pipeline.Request, error) {
	return pipeline.NewRequest(r.MineID, r.StartDate, r.EndDate)
}

// FromRange converts a date range.
func FromRange(r daterange.Range) DateRange {
	return DateRange{Start: r.Start.String(), End: r.End.String()}
}

func fromRanges(rs []daterange.Range) []DateRange {
	if len(rs) == 0 {
		return nil
	}
	out := make([]DateRange, 0, len(rs))
	for _, r := range rs {
		out = append(out, FromRange(r))
	}
	return out
}

// FromResult converts a pipeline result.
func FromResult(res pipeline.Result) PipelineResult {
	dto := PipelineResult{
		MineID:    res.MineID,
		Skipped:   res.Skipped,
		Processed: fromRanges(res.Processed),
		Empty:     fromRanges(res.Empty),
		Inserted: InsertedCounts{
			Observations: res.Inserted.Observations,
			Violations:   res.Inserted.Violations,
			Alerts:       res.Inserted.Alerts,
		},
		Excavated: res.Excavated,
		Zones:     res.Zones,
	}
	if res.Existing != nil {
		existing := FromRange(*res.Existing)
		dto.Existing = &existing
	}
	if len(res.AlertsByKind) > 0 {
		dto.AlertsByKind = make(map[string]int, len(res.AlertsByKind))
		for kind, n := range res.AlertsByKind {
			dto.AlertsByKind[string(kind)] = n
		}
	}
	return dto
}

// FromTask converts a workflow task snapshot.
func FromTask(t workflow.Task) Task {
	dto := Task{
		ID:     t.ID,
		MineID: t.MineID,
		Window: FromRange(t.Window),
		Status: string(t.Status),
		Progress: TaskProgress{
			Stage:   t.Stage,
			Percent: t.Progress,
			Message: t.Message,
		},
		Error:     t.Error,
		Retryable: t.Retryable,
		CreatedAt: formatTime(t.CreatedAt),
		UpdatedAt: formatTime(t.UpdatedAt),
	}
	if t.Result != nil {
		res := FromResult(*t.Result)
		dto.Result = &res
	}
	if t.FinishedAt != nil {
		dto.FinishedAt = formatTime(*t.FinishedAt)
	}
	return dto
}

// FromTasks converts a slice of task snapshots.
func FromTasks(tasks []workflow.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, FromTask(t))
	}
	return out
}

// FromSummary converts the workflow summary.
func FromSummary(s workflow.Summary) WorkflowStatus {
	tasks := map[string]int{
		string(workflow.StatusQueued):     0,
		string(workflow.StatusProcessing): 0,
		string(workflow.StatusCompleted):  0,
		string(workflow.StatusFailed):     0,
	}
	for status, n := range s.Tasks {
		tasks[string(status)] = n
	}
	return WorkflowStatus{Running: s.Running, Tasks: tasks, LastError: s.LastError}
}

func fromBands(b pixels.Bands) Bands {
	return Bands{B4: b.B4, B8: b.B8, B11: b.B11, NDVI: b.NDVI, NBR: b.NBR}
}

// FromObservations converts stored observations.
func FromObservations(obs []pixels.Observation) []Pixel {
	out := make([]Pixel, 0, len(obs))
	for _, o := range obs {
		out = append(out, Pixel{
			Date:         o.Date.String(),
			Latitude:     o.Location.Lat,
			Longitude:    o.Location.Lon,
			Bands:        fromBands(o.Bands),
			AnomalyLabel: int(o.Label),
			AnomalyScore: o.Score,
			Excavated:    o.Excavated,
		})
	}
	return out
}

// FromViolations converts stored violation records.
func FromViolations(records []violations.Record) []Violation {
	out := make([]Violation, 0, len(records))
	for _, r := range records {
		out = append(out, Violation{
			Date:         r.Date.String(),
			Latitude:     r.Location.Lat,
			Longitude:    r.Location.Lon,
			ZoneType:     string(r.ZoneType),
			AreaM2:       r.Area,
			AnomalyScore: r.Score,
		})
	}
	return out
}

// FromAlerts converts stored alerts.
func FromAlerts(items []alerts.Alert) []Alert {
	out := make([]Alert, 0, len(items))
	for _, a := range items {
		out = append(out, Alert{
			Date:         a.Date.String(),
			ZoneType:     string(a.ZoneType),
			Kind:         string(a.Kind),
			Label:        a.Kind.Label(),
			AffectedArea: a.AffectedArea,
			Streak:       a.Streak,
		})
	}
	return out
}

// FromSignature converts a spectral signature.
func FromSignature(sig store.Signature) SignatureResponse {
	return SignatureResponse{
		MineID:    sig.MineID,
		Window:    FromRange(sig.Range),
		Normal:    BandMeans{Count: sig.Normal.Count, Mean: fromBands(sig.Normal.Mean)},
		Anomalous: BandMeans{Count: sig.Anomalous.Count, Mean: fromBands(sig.Anomalous.Mean)},
	}
}

// FromKPI converts a KPI summary. pixelArea converts excavated counts to m².
func FromKPI(k store.KPI, pixelArea float64) KPIResponse {
	dto := KPIResponse{
		MineID:          k.MineID,
		Window:          FromRange(k.Range),
		Observations:    k.Observations,
		Locations:       k.Locations,
		Anomalous:       k.Anomalous,
		Excavated:       k.Excavated,
		ExcavatedAreaM2: k.ExcavatedArea(pixelArea),
		ViolationAreaM2: make(map[string]float64, len(k.ViolationArea)),
		ViolationPixels: k.ViolationPixels,
		Alerts:          make(map[string]int, len(alerts.Kinds)),
	}
	for zone, area := range k.ViolationArea {
		dto.ViolationAreaM2[string(zone)] = area
	}
	for _, kind := range alerts.Kinds {
		dto.Alerts[string(kind)] = k.Alerts[kind]
	}
	if k.LatestAlert != nil {
		dto.LatestAlert = k.LatestAlert.String()
	}
	return dto
}

// FromLogEvents converts hub events for streaming.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     formatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			Stage:         evt.Stage,
			MineID:        evt.MineID,
			TaskID:        evt.TaskID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

// SortedKinds returns alert kind keys of m in classification order.
func SortedKinds(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for _, kind := range alerts.Kinds {
		if _, ok := m[string(kind)]; ok {
			keys = append(keys, string(kind))
		}
	}
	var extra []string
	for k := range m {
		if !slices.Contains(keys, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
