package pipeline

import (
	"fmt"

	"minewatch/internal/alerts"
	"minewatch/internal/daterange"
	"minewatch/internal/services"
	"minewatch/internal/store"
)

// Request asks for one mine to be brought up to date over Window.
type Request struct {
	MineID    int64           `json:"mine_id"`
	Window    daterange.Range `json:"window"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewRequest parses ISO dates into a Request.
func NewRequest(mineID int64, start, end string) (Request, error) {
	window, err := daterange.Parse(start, end)
	if err != nil {
		return Request{}, err
	}
	req := Request{MineID: mineID, Window: window}
	return req, req.Validate()
}

// Validate checks the mine identifier and date ordering.
func (r Request) Validate() error {
	if r.MineID <= 0 {
		return services.Wrap(services.ErrValidation, "request", "validate", fmt.Sprintf("mine id %d must be positive", r.MineID), nil)
	}
	if r.Window.Start.IsZero() || r.Window.End.IsZero() {
		return services.Wrap(services.ErrInvalidDateRange, "request", "validate", "start and end dates are required", nil)
	}
	if !r.Window.Valid() {
		return services.Wrap(services.ErrInvalidDateRange, "request", "validate",
			fmt.Sprintf("start %s is after end %s", r.Window.Start, r.Window.End), nil)
	}
	return nil
}

// Result summarizes one invocation.
type Result struct {
	MineID int64 `json:"mine_id"`
	// Skipped is true when every requested date was already stored.
	Skipped  bool             `json:"skipped"`
	Existing *daterange.Range `json:"existing,omitempty"`
	// Processed lists the ranges whose rows were committed.
	Processed []daterange.Range `json:"processed,omitempty"`
	// Empty lists resolved ranges for which the provider returned no rows.
	Empty        []daterange.Range   `json:"empty,omitempty"`
	Inserted     store.Counts        `json:"inserted"`
	AlertsByKind map[alerts.Kind]int `json:"alerts_by_kind,omitempty"`
	Excavated    int                 `json:"excavated"`
	Zones        int                 `json:"zones"`
}
