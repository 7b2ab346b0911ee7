package planner

import (
	"time"

	"github.com/TFMV/batchpress/internal/types"
)

// Derive walks the batch sequence in order and produces the schedule
// intervals plus the metrics comparing the batched schedule against the FIFO
// baseline.
//
// Intervals accumulate sequentially from start on a single line: each batch
// after the first is preceded by exactly one fixed changeover, so batch i+1
// starts at batch i's start plus its duration plus the changeover. A batch's
// duration is its total quantity divided by the configured throughput.
//
// The baseline models the naive no-grouping schedule, which pays one
// changeover between every pair of consecutive orders. All ratio
// computations are guarded: with zero baseline changeover time the saved
// percentage is a defined 0, never a division by zero.
func (p *Planner) Derive(batches []types.Batch, start time.Time) ([]types.Interval, types.Metrics) {
	intervals := make([]types.Interval, 0, len(batches))
	cursor := start
	totalOrders := 0

	for i, b := range batches {
		var gap time.Duration
		if i > 0 {
			gap = p.cfg.Changeover
			cursor = cursor.Add(gap)
		}
		d := p.batchDuration(b)
		intervals = append(intervals, types.Interval{
			Batch:      b,
			Start:      cursor,
			Duration:   d,
			Changeover: gap,
		})
		cursor = cursor.Add(d)
		totalOrders += len(b.Orders)
	}

	changeovers := 0
	if len(batches) > 1 {
		changeovers = len(batches) - 1
	}
	baseline := 0
	if totalOrders > 1 {
		baseline = totalOrders - 1
	}

	m := types.Metrics{
		TotalOrders:            totalOrders,
		TotalBatches:           len(batches),
		TotalChangeovers:       changeovers,
		ChangeoverTime:         time.Duration(changeovers) * p.cfg.Changeover,
		BaselineChangeovers:    baseline,
		BaselineChangeoverTime: time.Duration(baseline) * p.cfg.Changeover,
	}
	m.Saved = m.BaselineChangeoverTime - m.ChangeoverTime
	if m.BaselineChangeoverTime > 0 {
		m.SavedPercent = float64(m.Saved) / float64(m.BaselineChangeoverTime) * 100
	}

	return intervals, m
}

// batchDuration converts a batch's quantity into line time at the configured
// throughput.
func (p *Planner) batchDuration(b types.Batch) time.Duration {
	return time.Duration(float64(b.TotalQuantity()) / float64(p.cfg.ThroughputPerHour) * float64(time.Hour))
}
