// Package vonatinfo is a client for the MÁV live train map feed.
//
// The feed is decoded record by record. A record that cannot be mapped (unknown
// operator, train number without the operator prefix, wrong field types) is
// skipped and logged at warn level; the snapshot still succeeds with the
// remaining trains and reports how many were skipped.
package vonatinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/vonatfigyelo/vonatfigyelo/internal/mav"
	"github.com/vonatfigyelo/vonatfigyelo/internal/provider/resilience"
	"github.com/vonatfigyelo/vonatfigyelo/internal/telemetry"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "vonatinfo"

	// DefaultBaseURL is the production live map endpoint.
	DefaultBaseURL = "https://vonatinfo.mav-start.hu/map.aspx"
)

// ClientConfig holds configuration for the Vonatinfo client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *resilience.Client
	Metrics    *telemetry.Metrics
	Logger     zerolog.Logger
}

// Client fetches the live positions of running trains.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

// NewClient creates a new Vonatinfo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultConfig(ProviderName))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("upstream", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Snapshot is one poll of the live feed.
type Snapshot struct {
	Trains         []mav.RealtimeTrain
	SkippedRecords int
	FetchedAt      time.Time
}

// ActiveTrains polls the feed.
func (c *Client) ActiveTrains(ctx context.Context) (*Snapshot, error) {
	req := getDataRequest{A: "TRAINS"}

	var resp getDataResponse
	start := time.Now()
	err := c.httpClient.PostJSON(ctx, c.baseURL+"/getData", nil, req, &resp)
	c.metrics.RecordUpstream(ProviderName, "trains", time.Since(start), err)
	if err != nil {
		c.logger.Error().Err(err).Msg("vonatinfo request failed")
		return nil, fmt.Errorf("%w: trains: %v", mav.ErrUpstreamUnavailable, err)
	}

	raw := resp.D.Result.Trains.Train
	snapshot := &Snapshot{
		Trains:    make([]mav.RealtimeTrain, 0, len(raw)),
		FetchedAt: start,
	}
	for _, rec := range raw {
		train, err := toRealtimeTrain(rec)
		if err != nil {
			snapshot.SkippedRecords++
			c.logger.Warn().Err(err).Msg("skipping realtime record")
			continue
		}
		snapshot.Trains = append(snapshot.Trains, train)
	}

	if snapshot.SkippedRecords > 0 {
		c.logger.Info().Int("trains", len(snapshot.Trains)).Int("skipped", snapshot.SkippedRecords).
			Msg("realtime snapshot fetched with skipped records")
	}
	return snapshot, nil
}

func toRealtimeTrain(raw json.RawMessage) (mav.RealtimeTrain, error) {
	var dto trainDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return mav.RealtimeTrain{}, &mav.UpstreamDataError{Source: ProviderName, Record: string(raw), Reason: err.Error()}
	}

	fail := func(err error) (mav.RealtimeTrain, error) {
		return mav.RealtimeTrain{}, &mav.UpstreamDataError{Source: ProviderName, Record: dto.TrainNumber, Reason: err.Error()}
	}

	op, ok := mav.ParseOperator(dto.Operator)
	if !ok {
		return fail(fmt.Errorf("unknown operator %q", dto.Operator))
	}
	code, err := mav.StripOperatorPrefix(op, dto.TrainNumber)
	if err != nil {
		return fail(err)
	}
	if dto.Lat == nil || dto.Lon == nil {
		return fail(errors.New("missing coordinates"))
	}

	delay := 0
	if dto.Delay != nil && *dto.Delay > 0 {
		delay = int(math.Round(*dto.Delay))
	}

	return mav.RealtimeTrain{
		Code:        code,
		Operator:    op,
		Delay:       delay,
		Coordinates: mav.Coordinates{Lon: *dto.Lon, Lat: *dto.Lat},
		Relation:    dto.Relation,
		ElviraID:    dto.ElviraID,
	}, nil
}

type getDataRequest struct {
	A  string `json:"a"`
	Jo struct {
		History bool `json:"history"`
		ID      bool `json:"id"`
	} `json:"jo"`
}

type getDataResponse struct {
	D struct {
		Result struct {
			Trains struct {
				Train []json.RawMessage `json:"Train"`
			} `json:"Trains"`
		} `json:"result"`
	} `json:"d"`
}

type trainDTO struct {
	Delay       *float64 `json:"@Delay"`
	Lat         *float64 `json:"@Lat"`
	Lon         *float64 `json:"@Lon"`
	Relation    string   `json:"@Relation"`
	TrainNumber string   `json:"@TrainNumber"`
	Operator    string   `json:"@Menetvonal"`
	ElviraID    string   `json:"@ElviraID"`
}
