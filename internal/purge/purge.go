// Package purge deletes every asset held by the provider in bounded rounds.
package purge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/mux"
)

const (
	DefaultPageLimit  = 100
	DefaultBatchSize  = 20
	DefaultBatchPause = 500 * time.Millisecond
	DefaultMaxRounds  = 20
)

// AssetSource lists and deletes remote assets.
type AssetSource interface {
	ListAssets(ctx context.Context, limit int) ([]mux.Asset, error)
	DeleteAsset(ctx context.Context, assetID string) bool
}

// StopReason says why DeleteAll stopped.
type StopReason string

const (
	StopExhausted  StopReason = "exhausted"
	StopNoProgress StopReason = "no_progress"
	StopDepthLimit StopReason = "depth_limit"
	StopError      StopReason = "error"
)

// Result aggregates a purge run.
type Result struct {
	Success int        `json:"success"`
	Failure int        `json:"failure"`
	Total   int        `json:"total"`
	Rounds  int        `json:"rounds"`
	Reason  StopReason `json:"reason"`
}

func (r *Result) merge(o Result) {
	r.Success += o.Success
	r.Failure += o.Failure
	r.Total += o.Total
}

// Coordinator drives bulk deletion.
type Coordinator struct {
	source     AssetSource
	clock      clock.Clock
	pageLimit  int
	batchSize  int
	batchPause time.Duration
	maxRounds  int
}

// NewCoordinator creates a coordinator. pageLimit <= 0 uses DefaultPageLimit.
func NewCoordinator(source AssetSource, clk clock.Clock, pageLimit int) *Coordinator {
	if clk == nil {
		clk = clock.Real{}
	}
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	return &Coordinator{
		source:     source,
		clock:      clk,
		pageLimit:  pageLimit,
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
		maxRounds:  DefaultMaxRounds,
	}
}

// DeleteAll fetches one page of assets per round and deletes it in batches.
// The listing has no cursor: each round relies on the previous round's
// deletions shrinking the result set. A round that finds assets but deletes
// none ends the run, and the run never exceeds maxRounds rounds.
//
// On a listing error or cancellation the totals gathered so far are returned
// along with the error.
func (c *Coordinator) DeleteAll(ctx context.Context) (Result, error) {
	var total Result

	for round := 1; round <= c.maxRounds; round++ {
		total.Rounds = round

		assets, err := c.source.ListAssets(ctx, c.pageLimit)
		if err != nil {
			total.Reason = StopError
			return total, fmt.Errorf("list assets (round %d): %w", round, err)
		}
		if len(assets) == 0 {
			total.Reason = StopExhausted
			return total, nil
		}

		page, err := c.deletePage(ctx, assets)
		total.merge(page)
		log.Info("purge round finished",
			zap.Int("round", round),
			zap.Int("found", len(assets)),
			zap.Int("success", page.Success),
			zap.Int("failure", page.Failure),
		)
		if err != nil {
			total.Reason = StopError
			return total, err
		}

		if page.Success == 0 {
			log.Warn("purge made no progress, stopping",
				zap.Int("round", round),
				zap.Int("remaining", len(assets)),
			)
			total.Reason = StopNoProgress
			return total, nil
		}
	}

	log.Warn("purge hit round limit", zap.Int("max_rounds", c.maxRounds))
	total.Reason = StopDepthLimit
	return total, nil
}

// deletePage deletes assets sequentially in batches with a pause between
// batches. A failed delete is counted, never fatal.
func (c *Coordinator) deletePage(ctx context.Context, assets []mux.Asset) (Result, error) {
	var res Result
	for start := 0; start < len(assets); start += c.batchSize {
		if start > 0 {
			if err := c.clock.Sleep(ctx, c.batchPause); err != nil {
				return res, err
			}
		}
		end := start + c.batchSize
		if end > len(assets) {
			end = len(assets)
		}
		for _, asset := range assets[start:end] {
			res.Total++
			if c.source.DeleteAsset(ctx, asset.ID) {
				res.Success++
			} else {
				res.Failure++
			}
		}
	}
	return res, nil
}
