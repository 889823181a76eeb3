package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"minewatch/internal/api"
)

// ErrAPIUnavailable reports that no API address is configured.
var ErrAPIUnavailable = errors.New("log API unavailable")

// StreamClient reads the daemon log stream over HTTP.
type StreamClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

// StreamQuery selects events from the daemon log stream. Zero values disable
// the corresponding filter.
type StreamQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	Tail   bool
	MineID int64
	TaskID string
	Level  string
}

// NewStreamClient builds a client for the API at bind. An empty bind yields a
// nil client.
func NewStreamClient(bind, token string) (*StreamClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &StreamClient{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: follow mode blocks until events arrive or the caller cancels.
		http: &http.Client{},
	}, nil
}

func (q StreamQuery) values() url.Values {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if q.MineID > 0 {
		values.Set("mine", strconv.FormatInt(q.MineID, 10))
	}
	if task := strings.TrimSpace(q.TaskID); task != "" {
		values.Set("task", task)
	}
	if level := strings.TrimSpace(q.Level); level != "" {
		values.Set("level", level)
	}
	return values
}

// Fetch returns one page of events and the cursor for the next call.
func (c *StreamClient) Fetch(ctx context.Context, q StreamQuery) (api.LogStreamResponse, error) {
	if c == nil {
		return api.LogStreamResponse{}, ErrAPIUnavailable
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/logs", RawQuery: q.values().Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return api.LogStreamResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return api.LogStreamResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return api.LogStreamResponse{}, fmt.Errorf("api logs returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return api.LogStreamResponse{}, fmt.Errorf("api logs returned status %d", resp.StatusCode)
	}

	var payload api.LogStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return api.LogStreamResponse{}, err
	}
	return payload, nil
}

// IsAPIUnavailable reports whether err means the daemon API cannot be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
