// Package planner implements the order-to-batch grouping policy and the
// schedule derivation it feeds. Both operations are pure: they read nothing
// but their inputs and the planner's configuration, and they never fail.
package planner

import (
	"fmt"
	"time"

	"github.com/TFMV/batchpress/internal/types"
)

const (
	// batchIDFormat is the fixed identifier format: a prefix plus a
	// 4-digit zero-padded sequence number starting at 1.
	batchIDFormat = "BATCH-%04d"

	// defaultThroughputPerHour is the line throughput in units per hour.
	defaultThroughputPerHour = 1000

	// defaultChangeover is the fixed setup time between consecutive batches.
	defaultChangeover = 20 * time.Minute
)

// Config contains the tunable parameters of the planning policy.
type Config struct {
	// ThroughputPerHour is the processing rate of the line in units per
	// hour. Batch duration is total quantity divided by this rate.
	ThroughputPerHour int

	// Changeover is the fixed setup time charged between every pair of
	// consecutive batches, independent of which batches are adjacent.
	Changeover time.Duration

	// UrgentThreshold marks urgency: orders with priority strictly greater
	// than this value are urgent. The default of 0 makes any positive
	// priority urgent.
	UrgentThreshold int

	// ModeOrder is the fixed emission order of the per-mode batches built
	// from normal orders. It must cover every print mode that can appear
	// on a normal order; modes absent from it are never batched.
	ModeOrder []types.PrintMode
}

// Planner builds batches from orders and derives schedules from batches.
// A Planner is immutable after construction and safe for concurrent use.
type Planner struct {
	cfg Config
}

// New creates a Planner with the given config. Zero values are replaced by
// the reference defaults: 1000 units/hour, a 20 minute changeover, an urgent
// threshold of 0, and color-before-monochrome mode order.
func New(cfg Config) *Planner {
	if cfg.ThroughputPerHour <= 0 {
		cfg.ThroughputPerHour = defaultThroughputPerHour
	}
	if cfg.Changeover == 0 {
		cfg.Changeover = defaultChangeover
	}
	if len(cfg.ModeOrder) == 0 {
		cfg.ModeOrder = []types.PrintMode{types.PrintModeColor, types.PrintModeMono}
	}
	return &Planner{cfg: cfg}
}

// Config returns the planner's effective configuration after defaulting.
func (p *Planner) Config() Config {
	return p.cfg
}

// Build partitions orders into an ordered sequence of batches.
//
// Urgent orders (priority above the threshold) form a single batch emitted
// first, regardless of how many print modes or paper stocks they mix: urgency
// overrides print-mode homogeneity. The remaining orders are grouped by
// exact print mode, one batch per mode in ModeOrder, preserving the original
// relative order within every batch. Paper type and machine class never
// participate in grouping; each batch's representative print mode and paper
// type come from its first member.
//
// Build never validates and never fails: an empty input yields an empty
// batch sequence. Validation belongs to ingestion; see ValidateOrders.
func (p *Planner) Build(orders []types.Order) []types.Batch {
	var urgent, normal []types.Order
	for _, o := range orders {
		if o.Urgent(p.cfg.UrgentThreshold) {
			urgent = append(urgent, o)
		} else {
			normal = append(normal, o)
		}
	}

	var batches []types.Batch
	seq := 1

	if len(urgent) > 0 {
		batches = append(batches, newBatch(seq, urgent))
		seq++
	}

	for _, mode := range p.cfg.ModeOrder {
		var group []types.Order
		for _, o := range normal {
			if o.PrintMode == mode {
				group = append(group, o)
			}
		}
		if len(group) > 0 {
			batches = append(batches, newBatch(seq, group))
			seq++
		}
	}

	return batches
}

// ValidateOrders checks every order against the ingestion rules and returns
// the first failure, wrapping types.ErrInvalidOrder. It is the pre-build
// validation point for callers whose orders did not pass through a validating
// store.
func ValidateOrders(orders []types.Order) error {
	for _, o := range orders {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// newBatch assembles a batch from a non-empty member list, stamping the
// sequential id and the first member's representative mode and paper.
func newBatch(seq int, orders []types.Order) types.Batch {
	return types.Batch{
		ID:        fmt.Sprintf(batchIDFormat, seq),
		Orders:    orders,
		PrintMode: orders[0].PrintMode,
		PaperType: orders[0].PaperType,
	}
}
