package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultUsagePath = "/api/oauth/usage"
	defaultBeta      = "oauth-2025-04-20"
)

// Fetcher performs one usage observation against the remote API.
type Fetcher interface {
	FetchUsage(ctx context.Context, token string) (Snapshot, error)
}

// ClientOptions parameterise the usage client.
type ClientOptions struct {
	BaseURL    string
	UsagePath  string
	BetaHeader string
	Timeout    time.Duration
	UserAgent  string
}

// Client fetches usage from the Anthropic OAuth usage endpoint.
type Client struct {
	opts   ClientOptions
	logger zerolog.Logger
	client *http.Client
	url    string
}

// NewClient constructs a usage client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	path := opts.UsagePath
	if path == "" {
		path = defaultUsagePath
	}
	if opts.BetaHeader == "" {
		opts.BetaHeader = defaultBeta
	}

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "usage_client").Logger(),
		client: &http.Client{Timeout: timeout},
		url:    baseURL + path,
	}
}

// usageResponse mirrors the wire shape of the usage endpoint.
type usageResponse struct {
	FiveHour usageWindow `json:"five_hour"`
	SevenDay usageWindow `json:"seven_day"`
}

type usageWindow struct {
	Utilization float64   `json:"utilization"`
	ResetsAt    time.Time `json:"resets_at"`
}

// FetchUsage performs a single GET against the usage endpoint. Every failure
// is classified: transport problems and non-auth statuses are KindNetwork,
// 401/403 is KindAuth, an undecodable or out-of-range body is KindMalformed.
func (c *Client) FetchUsage(ctx context.Context, token string) (Snapshot, error) {
	if token == "" {
		return Snapshot{}, NewError(KindNotAuthenticated, errors.New("empty access token"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Snapshot{}, NewError(KindNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("anthropic-beta", c.opts.BetaHeader)
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, NewError(KindNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("token rejected by usage endpoint")
		return Snapshot{}, NewError(KindAuth, fmt.Errorf("usage endpoint returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, NewError(KindNetwork, fmt.Errorf("usage endpoint returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, NewError(KindNetwork, err)
	}

	var payload usageResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error().Err(err).Str("body", truncate(string(body), 256)).Msg("undecodable usage response")
		return Snapshot{}, NewError(KindMalformed, err)
	}

	snap := Snapshot{
		FiveHourPercent:  decimal.NewFromFloat(payload.FiveHour.Utilization),
		WeeklyPercent:    decimal.NewFromFloat(payload.SevenDay.Utilization),
		FiveHourResetsAt: payload.FiveHour.ResetsAt,
		WeeklyResetsAt:   payload.SevenDay.ResetsAt,
		CapturedAt:       time.Now().UTC(),
	}
	if err := snap.Validate(); err != nil {
		c.logger.Error().Err(err).Str("body", truncate(string(body), 256)).Msg("usage response out of range")
		return Snapshot{}, NewError(KindMalformed, err)
	}

	return snap, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Fetcher = (*Client)(nil)
