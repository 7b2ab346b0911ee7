package planner

import (
	"testing"
	"time"

	"github.com/TFMV/batchpress/internal/types"
)

func order(id string, mode types.PrintMode, qty, priority int) types.Order {
	return types.Order{
		ID:           id,
		PrintMode:    mode,
		PaperType:    types.PaperPlain,
		MachineClass: types.MachineRoll,
		Quantity:     qty,
		Priority:     priority,
	}
}

func TestBuild_UrgentPrecedence(t *testing.T) {
	p := New(Config{})

	batches := p.Build([]types.Order{
		order("color-1", types.PrintModeColor, 5000, 0),
		order("rush-1", types.PrintModeMono, 15000, 2),
		order("rush-2", types.PrintModeColor, 2000, 1),
		order("mono-1", types.PrintModeMono, 7000, 0),
	})

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}

	urgent := batches[0]
	if len(urgent.Orders) != 2 {
		t.Fatalf("urgent batch: expected 2 orders, got %d", len(urgent.Orders))
	}
	if urgent.Orders[0].ID != "rush-1" || urgent.Orders[1].ID != "rush-2" {
		t.Errorf("urgent batch order = [%s %s], want [rush-1 rush-2]",
			urgent.Orders[0].ID, urgent.Orders[1].ID)
	}
	// rush-2 is a color order but urgency removes it from mode grouping
	if batches[1].Orders[0].ID != "color-1" || len(batches[1].Orders) != 1 {
		t.Errorf("color batch should hold only color-1, got %v", batchIDs(batches[1]))
	}
	if batches[2].Orders[0].ID != "mono-1" || len(batches[2].Orders) != 1 {
		t.Errorf("monochrome batch should hold only mono-1, got %v", batchIDs(batches[2]))
	}
}

func TestBuild_TypeGrouping(t *testing.T) {
	p := New(Config{})

	batches := p.Build([]types.Order{
		order("m1", types.PrintModeMono, 1000, 0),
		order("c1", types.PrintModeColor, 1000, 0),
		order("m2", types.PrintModeMono, 1000, 0),
		order("c2", types.PrintModeColor, 1000, 0),
	})

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	// color before monochrome, original relative order inside each
	if got := batchIDs(batches[0]); got[0] != "c1" || got[1] != "c2" {
		t.Errorf("color batch members = %v, want [c1 c2]", got)
	}
	if got := batchIDs(batches[1]); got[0] != "m1" || got[1] != "m2" {
		t.Errorf("monochrome batch members = %v, want [m1 m2]", got)
	}
	if batches[0].PrintMode != types.PrintModeColor {
		t.Errorf("first batch mode = %s, want color", batches[0].PrintMode)
	}
	if batches[1].PrintMode != types.PrintModeMono {
		t.Errorf("second batch mode = %s, want monochrome", batches[1].PrintMode)
	}
}

func TestBuild_PartitionCompleteness(t *testing.T) {
	p := New(Config{})

	in := []types.Order{
		order("a", types.PrintModeColor, 100, 3),
		order("b", types.PrintModeMono, 200, 0),
		order("c", types.PrintModeColor, 300, 0),
		order("d", types.PrintModeMono, 400, 1),
		order("e", types.PrintModeColor, 500, 0),
	}
	batches := p.Build(in)

	seen := map[string]int{}
	for _, b := range batches {
		for _, o := range b.Orders {
			seen[o.ID]++
		}
	}
	if len(seen) != len(in) {
		t.Fatalf("expected %d distinct orders across batches, got %d", len(in), len(seen))
	}
	for _, o := range in {
		if seen[o.ID] != 1 {
			t.Errorf("order %s appears %d times, want exactly 1", o.ID, seen[o.ID])
		}
	}
}

func TestBuild_IDSequence(t *testing.T) {
	p := New(Config{})

	batches := p.Build([]types.Order{
		order("u", types.PrintModeMono, 100, 5),
		order("c", types.PrintModeColor, 100, 0),
		order("m", types.PrintModeMono, 100, 0),
	})

	want := []string{"BATCH-0001", "BATCH-0002", "BATCH-0003"}
	if len(batches) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(batches))
	}
	for i, b := range batches {
		if b.ID != want[i] {
			t.Errorf("batch %d id = %s, want %s", i, b.ID, want[i])
		}
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	p := New(Config{})

	if batches := p.Build(nil); len(batches) != 0 {
		t.Errorf("expected no batches for empty input, got %d", len(batches))
	}
}

func TestBuild_SingleModeSkipsEmptyBatches(t *testing.T) {
	p := New(Config{})

	batches := p.Build([]types.Order{
		order("m1", types.PrintModeMono, 100, 0),
		order("m2", types.PrintModeMono, 100, 0),
	})

	if len(batches) != 1 {
		t.Fatalf("expected 1 batch (no empty color batch), got %d", len(batches))
	}
	if batches[0].ID != "BATCH-0001" {
		t.Errorf("batch id = %s, want BATCH-0001", batches[0].ID)
	}
	if batches[0].PrintMode != types.PrintModeMono {
		t.Errorf("batch mode = %s, want monochrome", batches[0].PrintMode)
	}
}

func TestBuild_RepresentativeFromFirstMember(t *testing.T) {
	p := New(Config{})

	first := order("u1", types.PrintModeMono, 100, 2)
	first.PaperType = types.PaperRecycled
	second := order("u2", types.PrintModeColor, 100, 1)
	second.PaperType = types.PaperCoated

	batches := p.Build([]types.Order{first, second})

	if len(batches) != 1 {
		t.Fatalf("expected 1 urgent batch, got %d", len(batches))
	}
	// mixed modes and papers collapse to the first member's values
	if batches[0].PrintMode != types.PrintModeMono {
		t.Errorf("representative mode = %s, want monochrome", batches[0].PrintMode)
	}
	if batches[0].PaperType != types.PaperRecycled {
		t.Errorf("representative paper = %s, want recycled", batches[0].PaperType)
	}
}

func TestBuild_UrgentThreshold(t *testing.T) {
	p := New(Config{UrgentThreshold: 1})

	batches := p.Build([]types.Order{
		order("prio-1", types.PrintModeColor, 100, 1),
		order("prio-2", types.PrintModeMono, 100, 2),
	})

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Orders[0].ID != "prio-2" {
		t.Errorf("urgent batch holds %s, want prio-2 (priority 1 is normal at threshold 1)",
			batches[0].Orders[0].ID)
	}
	if batches[1].Orders[0].ID != "prio-1" {
		t.Errorf("color batch holds %s, want prio-1", batches[1].Orders[0].ID)
	}
}

func TestBuild_ModeOrderOverride(t *testing.T) {
	p := New(Config{ModeOrder: []types.PrintMode{types.PrintModeMono, types.PrintModeColor}})

	batches := p.Build([]types.Order{
		order("c", types.PrintModeColor, 100, 0),
		order("m", types.PrintModeMono, 100, 0),
	})

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].PrintMode != types.PrintModeMono || batches[1].PrintMode != types.PrintModeColor {
		t.Errorf("mode emission order = [%s %s], want [monochrome color]",
			batches[0].PrintMode, batches[1].PrintMode)
	}
}

func TestBuild_ScenarioThreeBatches(t *testing.T) {
	p := New(Config{})

	rush := order("URGENT", types.PrintModeMono, 15000, 2)
	rush.PaperType = types.PaperRecycled
	color := order("COLOR", types.PrintModeColor, 5000, 0)
	color.PaperType = types.PaperCoated
	mono := order("BW", types.PrintModeMono, 7000, 0)

	batches := p.Build([]types.Order{rush, color, mono})

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, wantLen := range []int{1, 1, 1} {
		if len(batches[i].Orders) != wantLen {
			t.Errorf("batch %d has %d orders, want %d", i, len(batches[i].Orders), wantLen)
		}
	}
	if !batches[0].Urgent() {
		t.Error("first batch should be urgent")
	}
	if batches[1].PrintMode != types.PrintModeColor || batches[2].PrintMode != types.PrintModeMono {
		t.Errorf("batch modes = [%s %s], want [color monochrome]",
			batches[1].PrintMode, batches[2].PrintMode)
	}
}

func TestValidateOrders(t *testing.T) {
	good := order("ok", types.PrintModeColor, 1000, 0)
	bad := order("broken", types.PrintModeColor, 0, 0)

	if err := ValidateOrders([]types.Order{good}); err != nil {
		t.Errorf("valid orders: unexpected error %v", err)
	}
	if err := ValidateOrders([]types.Order{good, bad}); err == nil {
		t.Error("expected error for non-positive quantity, got nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := New(Config{}).Config()

	if cfg.ThroughputPerHour != 1000 {
		t.Errorf("default throughput = %d, want 1000", cfg.ThroughputPerHour)
	}
	if cfg.Changeover != 20*time.Minute {
		t.Errorf("default changeover = %v, want 20m", cfg.Changeover)
	}
	if cfg.UrgentThreshold != 0 {
		t.Errorf("default urgent threshold = %d, want 0", cfg.UrgentThreshold)
	}
	if len(cfg.ModeOrder) != 2 || cfg.ModeOrder[0] != types.PrintModeColor {
		t.Errorf("default mode order = %v, want [color monochrome]", cfg.ModeOrder)
	}
}

func batchIDs(b types.Batch) []string {
	ids := make([]string, 0, len(b.Orders))
	for _, o := range b.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}
