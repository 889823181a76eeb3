package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// PipelineRequest asks for a mine to be processed over an inclusive window.
type PipelineRequest struct {
	MineID    int64  `json:"mineId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// DateRange is an inclusive pair of ISO dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// InsertedCounts reports rows inserted by one invocation.
type InsertedCounts struct {
	Observations int `json:"observations"`
	Violations   int `json:"violations"`
	Alerts       int `json:"alerts"`
}

// PipelineResult summarizes a finished invocation.
type PipelineResult struct {
	MineID       int64          `json:"mineId"`
	Skipped      bool           `json:"skipped"`
	Existing     *DateRange     `json:"existing,omitempty"`
	Processed    []DateRange    `json:"processed"`
	Empty        []DateRange    `json:"empty,omitempty"`
	Inserted     InsertedCounts `json:"inserted"`
	AlertsByKind map[string]int `json:"alertsByKind,omitempty"`
	Excavated    int            `json:"excavated"`
	Zones        int            `json:"zones"`
}

// TaskProgress captures stage progress information for a task.
type TaskProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Task describes a pipeline task in a transport-friendly format.
type Task struct {
	ID         string          `json:"taskId"`
	MineID     int64           `json:"mineId"`
	Window     DateRange       `json:"window"`
	Status     string          `json:"status"`
	Progress   TaskProgress    `json:"progress"`
	Error      string          `json:"error,omitempty"`
	Retryable  bool            `json:"retryable,omitempty"`
	Result     *PipelineResult `json:"result,omitempty"`
	CreatedAt  string          `json:"createdAt,omitempty"`
	UpdatedAt  string          `json:"updatedAt,omitempty"`
	FinishedAt string          `json:"finishedAt,omitempty"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// WorkflowStatus summarizes task execution state.
type WorkflowStatus struct {
	Running   bool           `json:"running"`
	Tasks     map[string]int `json:"tasks"`
	LastError string         `json:"lastError,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	LogPath      string         `json:"logPath,omitempty"`
	Provider     string         `json:"provider"`
	Mines        int            `json:"mines"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Bands mirrors the stored spectral values.
type Bands struct {
	B4   float64 `json:"b4"`
	B8   float64 `json:"b8"`
	B11  float64 `json:"b11"`
	NDVI float64 `json:"ndvi"`
	NBR  float64 `json:"nbr"`
}

// Pixel is one stored observation.
type Pixel struct {
	Date         string  `json:"date"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Bands        Bands   `json:"bands"`
	AnomalyLabel int     `json:"anomalyLabel"`
	AnomalyScore float64 `json:"anomalyScore"`
	Excavated    bool    `json:"excavated"`
}

// PixelsResponse lists observations for a mine and window.
type PixelsResponse struct {
	MineID int64     `json:"mineId"`
	Window DateRange `json:"window"`
	Pixels []Pixel   `json:"pixels"`
}

// Violation is one excavated sample inside a protected zone.
type Violation struct {
	Date         string  `json:"date"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ZoneType     string  `json:"zoneType"`
	AreaM2       float64 `json:"areaM2"`
	AnomalyScore float64 `json:"anomalyScore"`
}

// ViolationsResponse lists violations for a mine and window.
type ViolationsResponse struct {
	MineID     int64       `json:"mineId"`
	Window     DateRange   `json:"window"`
	Violations []Violation `json:"violations"`
}

// Alert is one classified zone-day.
type Alert struct {
	Date         string  `json:"date"`
	ZoneType     string  `json:"zoneType"`
	Kind         string  `json:"alertType"`
	Label        string  `json:"label"`
	AffectedArea float64 `json:"affectedArea"`
	Streak       int     `json:"streak"`
}

// AlertsResponse lists alerts for a mine and window.
type AlertsResponse struct {
	MineID int64     `json:"mineId"`
	Window DateRange `json:"window"`
	Alerts []Alert   `json:"alerts"`
}

// BandMeans holds averaged bands over a pixel population.
type BandMeans struct {
	Count int   `json:"count"`
	Mean  Bands `json:"mean"`
}

// SignatureResponse compares normal and anomalous pixels.
type SignatureResponse struct {
	MineID    int64     `json:"mineId"`
	Window    DateRange `json:"window"`
	Normal    BandMeans `json:"normal"`
	Anomalous BandMeans `json:"anomalous"`
}

// KPIResponse summarizes monitoring indicators for a mine.
type KPIResponse struct {
	MineID          int64              `json:"mineId"`
	Window          DateRange          `json:"window"`
	Observations    int                `json:"observations"`
	Locations       int                `json:"locations"`
	Anomalous       int                `json:"anomalous"`
	Excavated       int                `json:"excavated"`
	ExcavatedAreaM2 float64            `json:"excavatedAreaM2"`
	ViolationAreaM2 map[string]float64 `json:"violationAreaM2"`
	ViolationPixels int                `json:"violationPixels"`
	Alerts          map[string]int     `json:"alerts"`
	LatestAlert     string             `json:"latestAlert,omitempty"`
}

// LogEvent is a structured log entry for live tailing.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	MineID        int64             `json:"mineId,omitempty"`
	TaskID        string            `json:"taskId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse returns log events and the cursor for the next call.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// GeoJSON carries an already-encoded GeoJSON document.
type GeoJSON = json.RawMessage
