// Package reviewer implements the ports.Reviewer boundary against an
// external HTTP policy-review service. The review output is free-form by
// nature, so the adapter enforces a strict schema: any action outside the
// enumeration resolves to an error and the caller holds.
package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
)

// Config holds configuration for the review client.
type Config struct {
	URL     string
	Timeout time.Duration // Hard per-call timeout
	Logger  ports.Logger
}

// Client calls the external policy-review endpoint.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	logger  ports.Logger
}

// New creates a policy-review client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for reviewer client")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("reviewer URL is required: %w", ports.ErrConfigurationError)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:     cfg.URL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}, nil
}

// Wire representations. The verdict summary and exposure travel out; a
// single decision travels back.
type verdictPayload struct {
	Strategy   string  `json:"strategy"`
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

type exposurePayload struct {
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	Horizon    string  `json:"horizon"`
}

type reviewPayload struct {
	Instrument   string            `json:"instrument"`
	Mode         string            `json:"mode"`
	Price        float64           `json:"price"`
	ATR          float64           `json:"atr"`
	Support      float64           `json:"support,omitempty"`
	Resistance   float64           `json:"resistance,omitempty"`
	BandPosition float64           `json:"band_position"`
	Balance      float64           `json:"balance"`
	Verdicts     []verdictPayload  `json:"verdicts"`
	Exposure     []exposurePayload `json:"exposure"`
}

type decisionPayload struct {
	Action          string  `json:"action"`
	Confidence      float64 `json:"confidence"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	PositionSizePct float64 `json:"position_size_pct"`
	Horizon         string  `json:"horizon"`
	Reasoning       string  `json:"reasoning"`
}

// Review posts the cycle's context and returns the validated decision.
// Timeouts surface as ports.ErrReviewTimeout, everything else as
// ports.ErrReviewFailed; the caller must resolve both to hold.
func (c *Client) Review(ctx context.Context, req ports.ReviewRequest) (*domain.ReviewDecision, error) {
	payload := reviewPayload{
		Instrument:   req.Instrument,
		Mode:         string(req.Mode),
		Price:        req.Metrics.Price,
		ATR:          req.Metrics.ATR,
		Support:      req.Metrics.Support,
		Resistance:   req.Metrics.Resistance,
		BandPosition: req.Metrics.BandPosition,
		Balance:      req.Balance,
	}
	for _, v := range req.Verdicts {
		payload.Verdicts = append(payload.Verdicts, verdictPayload{
			Strategy:   v.Strategy,
			Signal:     string(v.Signal),
			Confidence: v.Confidence,
		})
	}
	for _, pos := range req.Exposure {
		payload.Exposure = append(payload.Exposure, exposurePayload{
			Side:       string(pos.Side),
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
			Horizon:    string(pos.Horizon),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode review request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build review request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("review of %s: %w", req.Instrument, ports.ErrReviewTimeout)
		}
		return nil, fmt.Errorf("review of %s: %v: %w", req.Instrument, err, ports.ErrReviewFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("review of %s: status %d: %w", req.Instrument, resp.StatusCode, ports.ErrReviewFailed)
	}

	var dec decisionPayload
	if err := json.NewDecoder(resp.Body).Decode(&dec); err != nil {
		return nil, fmt.Errorf("review of %s: bad response body: %v: %w", req.Instrument, err, ports.ErrReviewFailed)
	}
	return c.validate(req.Instrument, dec)
}

// validate maps the wire decision onto the domain contract. Anything outside
// the action enumeration is rejected rather than defaulted ambiguously.
func (c *Client) validate(instrument string, dec decisionPayload) (*domain.ReviewDecision, error) {
	action := domain.Action(strings.ToLower(strings.TrimSpace(dec.Action)))
	if !action.IsValid() {
		return nil, fmt.Errorf("review of %s: action %q outside enumeration: %w",
			instrument, dec.Action, ports.ErrReviewFailed)
	}

	confidence := dec.Confidence
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("review of %s: confidence %f out of range: %w",
			instrument, dec.Confidence, ports.ErrReviewFailed)
	}

	if dec.StopLossPct < 0 || dec.StopLossPct >= 1 || dec.TakeProfitPct < 0 || dec.TakeProfitPct >= 1 {
		return nil, fmt.Errorf("review of %s: level hints sl=%f tp=%f out of range: %w",
			instrument, dec.StopLossPct, dec.TakeProfitPct, ports.ErrReviewFailed)
	}

	horizon := domain.Horizon(strings.ToLower(strings.TrimSpace(dec.Horizon)))
	if !horizon.IsValid() {
		// An absent or unknown horizon is tolerated; the medium policy row
		// bounds it.
		horizon = domain.HorizonMedium
	}

	return &domain.ReviewDecision{
		Action:          action,
		Confidence:      confidence,
		StopLossPct:     dec.StopLossPct,
		TakeProfitPct:   dec.TakeProfitPct,
		PositionSizePct: dec.PositionSizePct,
		Horizon:         horizon,
		Reasoning:       dec.Reasoning,
	}, nil
}
