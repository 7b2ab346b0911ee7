package dashboard

import (
	"fmt"
	"time"

	"github.com/TFMV/batchpress/internal/types"
)

// GanttRow describes one bar on the schedule chart, with geometry expressed
// as percentages of the schedule makespan.
type GanttRow struct {
	BatchID  string
	Label    string
	Class    string
	Urgent   bool
	Start    time.Time
	End      time.Time
	Duration time.Duration

	LeftPct  float64
	WidthPct float64

	HasChangeover      bool
	ChangeoverLeftPct  float64
	ChangeoverWidthPct float64
}

// Comparison holds the FIFO-versus-batched changeover figures for the
// comparison bars.
type Comparison struct {
	FIFOChangeovers int
	PlanChangeovers int
	FIFOTime        time.Duration
	PlanTime        time.Duration

	FIFOTimeWidthPct  float64
	PlanTimeWidthPct  float64
	FIFOCountWidthPct float64
	PlanCountWidthPct float64

	Saved        time.Duration
	SavedPercent float64
}

// batchClass maps a batch to its chart CSS class. Urgent batches win over
// the print mode split.
func batchClass(b types.Batch) string {
	if b.Urgent() {
		return "urgent"
	}
	if b.PrintMode == types.PrintModeColor {
		return "color"
	}
	return "monochrome"
}

// ganttRows lays out the schedule intervals on a 0..100% track. The track
// spans from the first interval's start to the last interval's end, so the
// final bar always closes at 100%.
func ganttRows(intervals []types.Interval) []GanttRow {
	if len(intervals) == 0 {
		return nil
	}

	start := intervals[0].Start
	span := intervals[len(intervals)-1].End().Sub(start)
	if span <= 0 {
		return nil
	}

	rows := make([]GanttRow, 0, len(intervals))
	for _, interval := range intervals {
		row := GanttRow{
			BatchID:  interval.Batch.ID,
			Label:    fmt.Sprintf("%s (%d units, %s)", interval.Batch.ID, interval.Batch.TotalQuantity(), interval.Batch.PrintMode),
			Class:    batchClass(interval.Batch),
			Urgent:   interval.Batch.Urgent(),
			Start:    interval.Start,
			End:      interval.End(),
			Duration: interval.Duration,
			LeftPct:  pctOf(interval.Start.Sub(start), span),
			WidthPct: pctOf(interval.Duration, span),
		}

		if interval.Changeover > 0 {
			row.HasChangeover = true
			row.ChangeoverLeftPct = pctOf(interval.Start.Add(-interval.Changeover).Sub(start), span)
			row.ChangeoverWidthPct = pctOf(interval.Changeover, span)
		}

		rows = append(rows, row)
	}

	return rows
}

func pctOf(d, span time.Duration) float64 {
	return float64(d) / float64(span) * 100
}

// buildComparison derives the comparison bar widths from the schedule
// metrics. The FIFO baseline is the full-width reference bar.
func buildComparison(m types.Metrics) Comparison {
	c := Comparison{
		FIFOChangeovers: m.BaselineChangeovers,
		PlanChangeovers: m.TotalChangeovers,
		FIFOTime:        m.BaselineChangeoverTime,
		PlanTime:        m.ChangeoverTime,
		Saved:           m.Saved,
		SavedPercent:    m.SavedPercent,
	}

	if m.BaselineChangeoverTime > 0 {
		c.FIFOTimeWidthPct = 100
		c.PlanTimeWidthPct = float64(m.ChangeoverTime) / float64(m.BaselineChangeoverTime) * 100
	}
	if m.BaselineChangeovers > 0 {
		c.FIFOCountWidthPct = 100
		c.PlanCountWidthPct = float64(m.TotalChangeovers) / float64(m.BaselineChangeovers) * 100
	}

	return c
}

// SeedOrders returns the three demo orders the dashboard resets to.
func SeedOrders(now time.Time) []types.Order {
	return []types.Order{
		{
			ID:           "URGENT",
			PrintMode:    types.PrintModeMono,
			PaperType:    types.PaperRecycled,
			MachineClass: types.MachineRoll,
			Quantity:     15000,
			Priority:     2,
			Deadline:     now.Add(48 * time.Hour),
		},
		{
			ID:           "COLOR",
			PrintMode:    types.PrintModeColor,
			PaperType:    types.PaperCoated,
			MachineClass: types.MachineRoll,
			Quantity:     5000,
			Deadline:     now.Add(7 * 24 * time.Hour),
		},
		{
			ID:           "BW",
			PrintMode:    types.PrintModeMono,
			PaperType:    types.PaperPlain,
			MachineClass: types.MachineRoll,
			Quantity:     7000,
			Deadline:     now.Add(8 * 24 * time.Hour),
		},
	}
}
