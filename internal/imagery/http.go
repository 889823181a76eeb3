package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"minewatch/internal/daterange"
	"minewatch/internal/logging"
	"minewatch/internal/mines"
	"minewatch/internal/pixels"
	"minewatch/internal/services"
)

const userAgent = "Minewatch-Go/0.1.0"

// Sentinel-2 sampling parameters requested from the sampling service.
const (
	SampleScaleMeters  = 10
	SampleStepDays     = 21
	MaxCloudPercentage = 20
)

// HTTPProvider requests samples from a remote sampling service. Requests are
// throttled by a token bucket shared by every caller of the provider.
type HTTPProvider struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// HTTPOptions configures an HTTPProvider.
type HTTPOptions struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Logger        *slog.Logger
	Client        *http.Client
}

// NewHTTPProvider builds a provider posting to <BaseURL>/samples.
func NewHTTPProvider(opts HTTPOptions) (*HTTPProvider, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "imagery", "configure http provider", "base_url is required", nil)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPProvider{
		endpoint: base + "/samples",
		token:    strings.TrimSpace(opts.Token),
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logging.NewComponentLogger(opts.Logger, "imagery"),
	}, nil
}

type sampleRequest struct {
	MineID      int64             `json:"mine_id"`
	Geometry    *geojson.Geometry `json:"geometry"`
	Start       string            `json:"start_date"`
	End         string            `json:"end_date"`
	Scale       int               `json:"scale"`
	StepDays    int               `json:"step_days"`
	MaxCloudPct int               `json:"max_cloud_percentage"`
	Bands       []string          `json:"bands"`
}

type sampleResponse struct {
	Rows []Row `json:"rows"`
}

// Fetch implements Provider.
func (p *HTTPProvider) Fetch(ctx context.Context, mine mines.Mine, window daterange.Range) ([]pixels.Observation, error) {
	if mine.Geometry == nil {
		return nil, services.Wrap(services.ErrValidation, "imagery", "fetch", fmt.Sprintf("mine %d has no geometry", mine.ID), nil)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, services.Wrap(services.ErrProviderUnavailable, "imagery", "rate limit", "", err)
	}

	body, err := json.Marshal(sampleRequest{
		MineID:      mine.ID,
		Geometry:    geojson.NewGeometry(mine.Geometry),
		Start:       window.Start.String(),
		End:         window.End.String(),
		Scale:       SampleScaleMeters,
		StepDays:    SampleStepDays,
		MaxCloudPct: MaxCloudPercentage,
		Bands:       pixels.FeatureNames,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "imagery", "encode request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "imagery", "build request", p.endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		marker := services.ErrProviderUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "imagery", "request samples", p.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		marker := services.ErrProviderUnavailable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, "imagery", "request samples",
			fmt.Sprintf("sampling service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var payload sampleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrProviderUnavailable, "imagery", "decode samples", "", err)
	}

	obs := make([]pixels.Observation, 0, len(payload.Rows))
	skipped := 0
	for _, row := range payload.Rows {
		if row.MineID == 0 {
			row.MineID = mine.ID
		}
		o, ok := row.Observation()
		if !ok {
			skipped++
			continue
		}
		obs = append(obs, o)
	}
	obs = filterWindow(obs, mine.ID, window)

	p.logger.Debug("remote samples fetched",
		logging.Int64(logging.FieldMineID, mine.ID),
		logging.String("window", window.String()),
		logging.Int("rows", len(obs)),
		logging.Int("skipped_rows", skipped),
		logging.Duration("duration", time.Since(started)),
	)
	return obs, nil
}
