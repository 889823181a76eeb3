package ipc

import "minewatch/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and workflow status.
type StatusResponse struct {
	Status     api.DaemonStatus `json:"status"`
	APIAddress string           `json:"api_address"`
}

// PipelineRequest asks for one mine and window to be processed.
type PipelineRequest = api.PipelineRequest

// TaskRequest fetches a single task by id.
type TaskRequest struct {
	ID string `json:"id"`
}

// TaskResponse contains a single task snapshot.
type TaskResponse = api.TaskResponse

// TasksRequest lists tracked tasks.
type TasksRequest struct{}

// TasksResponse contains task snapshots, newest first.
type TasksResponse = api.TaskListResponse

// MineQuery selects a mine and optional inclusive date bounds.
type MineQuery struct {
	MineID    int64  `json:"mine_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// PixelsResponse lists stored observations.
type PixelsResponse = api.PixelsResponse

// KPIResponse summarizes monitoring indicators.
type KPIResponse = api.KPIResponse

// AlertsResponse lists classified alerts.
type AlertsResponse = api.AlertsResponse

// ViolationsResponse lists stored violations.
type ViolationsResponse = api.ViolationsResponse

// ZonesResponse carries synthesized zones as a GeoJSON FeatureCollection.
type ZonesResponse struct {
	MineID  int64       `json:"mine_id"`
	GeoJSON api.GeoJSON `json:"geojson"`
	Count   int         `json:"count"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification result.
type TestNotificationResponse = api.NotificationResponse

// LogTailRequest asks for log lines from the daemon log file.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Contains   string `json:"contains"`
}

// LogTailResponse carries log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
