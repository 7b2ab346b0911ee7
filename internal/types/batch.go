package types

import (
	"time"
)

// Batch is an ordered, non-empty group of orders processed consecutively on
// one production line without an internal changeover. Batches are produced by
// the planner and are immutable once built.
type Batch struct {
	// ID is the generated batch identifier, sequential in emission order
	// (BATCH-0001, BATCH-0002, ...).
	ID string `json:"id"`

	// Orders are the member orders in their original relative order.
	Orders []Order `json:"orders"`

	// PrintMode is the representative print mode, taken from the first
	// member. Normal batches are homogeneous by construction; the urgent
	// batch may mix modes and still reports only its first member's.
	PrintMode PrintMode `json:"print_mode"`

	// PaperType is the representative paper stock, taken from the first
	// member. Batches are not homogeneous by paper type.
	PaperType PaperType `json:"paper_type"`
}

// TotalQuantity returns the summed quantity of all member orders.
func (b Batch) TotalQuantity() int {
	total := 0
	for _, o := range b.Orders {
		total += o.Quantity
	}
	return total
}

// AvgPriority returns the mean priority of the member orders, or 0 for an
// empty batch. It is derived on demand rather than stored so it can never go
// stale.
func (b Batch) AvgPriority() float64 {
	if len(b.Orders) == 0 {
		return 0
	}
	sum := 0
	for _, o := range b.Orders {
		sum += o.Priority
	}
	return float64(sum) / float64(len(b.Orders))
}

// Urgent reports whether the batch holds urgent work. A positive average
// priority can only come from the urgent batch, so this is what drives the
// urgent styling downstream.
func (b Batch) Urgent() bool {
	return b.AvgPriority() > 0
}

// Interval is one scheduled bar on the production line: a batch, its start
// time, its processing duration, and the changeover gap that precedes it.
type Interval struct {
	// Batch is the scheduled batch.
	Batch Batch `json:"batch"`

	// Start is when processing of the batch begins.
	Start time.Time `json:"start"`

	// Duration is how long the batch occupies the line.
	Duration time.Duration `json:"duration"`

	// Changeover is the setup gap before this batch. It is zero for the
	// first interval and the configured changeover constant for the rest.
	Changeover time.Duration `json:"changeover"`
}

// End returns the time at which the batch finishes processing.
func (iv Interval) End() time.Time {
	return iv.Start.Add(iv.Duration)
}

// Metrics summarizes a derived schedule and compares it against the naive
// first-in-first-out baseline that incurs a changeover between every pair of
// consecutive orders.
type Metrics struct {
	// TotalOrders is the number of orders across all batches.
	TotalOrders int `json:"total_orders"`

	// TotalBatches is the number of batches in the schedule.
	TotalBatches int `json:"total_batches"`

	// TotalChangeovers is the number of changeovers between consecutive
	// batches: max(TotalBatches-1, 0).
	TotalChangeovers int `json:"total_changeovers"`

	// ChangeoverTime is the summed changeover time of the schedule.
	ChangeoverTime time.Duration `json:"changeover_time"`

	// BaselineChangeovers is the changeover count of the FIFO baseline:
	// max(TotalOrders-1, 0).
	BaselineChangeovers int `json:"baseline_changeovers"`

	// BaselineChangeoverTime is the summed changeover time of the baseline.
	BaselineChangeoverTime time.Duration `json:"baseline_changeover_time"`

	// Saved is the changeover time the batched schedule avoids relative to
	// the baseline.
	Saved time.Duration `json:"saved"`

	// SavedPercent is Saved as a percentage of the baseline changeover
	// time. It is 0 when the baseline itself is 0 (one order or none).
	SavedPercent float64 `json:"saved_percent"`
}
