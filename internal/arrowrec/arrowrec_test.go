package arrowrec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/batchpress/internal/types"
)

func sampleIntervals() []types.Interval {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	urgent := types.Batch{
		ID:        "BATCH-0001",
		PrintMode: types.PrintModeMono,
		PaperType: types.PaperRecycled,
		Orders: []types.Order{
			{ID: "URGENT-2024-001", PrintMode: types.PrintModeMono, PaperType: types.PaperRecycled, MachineClass: types.MachineRoll, Quantity: 15000, Priority: 2},
		},
	}
	color := types.Batch{
		ID:        "BATCH-0002",
		PrintMode: types.PrintModeColor,
		PaperType: types.PaperCoated,
		Orders: []types.Order{
			{ID: "COLOR-2024-015", PrintMode: types.PrintModeColor, PaperType: types.PaperCoated, MachineClass: types.MachineRoll, Quantity: 5000},
		},
	}
	mono := types.Batch{
		ID:        "BATCH-0003",
		PrintMode: types.PrintModeMono,
		PaperType: types.PaperPlain,
		Orders: []types.Order{
			{ID: "BW-2024-032", PrintMode: types.PrintModeMono, PaperType: types.PaperPlain, MachineClass: types.MachineRoll, Quantity: 7000},
		},
	}

	return []types.Interval{
		{Batch: urgent, Start: start, Duration: 15 * time.Hour},
		{Batch: color, Start: start.Add(15*time.Hour + 20*time.Minute), Duration: 5 * time.Hour, Changeover: 20 * time.Minute},
		{Batch: mono, Start: start.Add(20*time.Hour + 40*time.Minute), Duration: 7 * time.Hour, Changeover: 20 * time.Minute},
	}
}

func TestScheduleRecordRoundTrip(t *testing.T) {
	intervals := sampleIntervals()

	record := ScheduleRecord(memory.NewGoAllocator(), intervals)
	defer record.Release()

	if got := record.NumRows(); got != 3 {
		t.Fatalf("NumRows = %d, want 3", got)
	}

	rows, err := Intervals(record)
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}

	for i, row := range rows {
		want := intervals[i]
		if row.BatchID != want.Batch.ID {
			t.Errorf("row %d BatchID = %s, want %s", i, row.BatchID, want.Batch.ID)
		}
		if row.PrintMode != want.Batch.PrintMode {
			t.Errorf("row %d PrintMode = %s, want %s", i, row.PrintMode, want.Batch.PrintMode)
		}
		if row.OrderCount != len(want.Batch.Orders) {
			t.Errorf("row %d OrderCount = %d, want %d", i, row.OrderCount, len(want.Batch.Orders))
		}
		if row.TotalQuantity != want.Batch.TotalQuantity() {
			t.Errorf("row %d TotalQuantity = %d, want %d", i, row.TotalQuantity, want.Batch.TotalQuantity())
		}
		if row.Urgent != want.Batch.Urgent() {
			t.Errorf("row %d Urgent = %v, want %v", i, row.Urgent, want.Batch.Urgent())
		}
		if !row.Start.Equal(want.Start) {
			t.Errorf("row %d Start = %v, want %v", i, row.Start, want.Start)
		}
		if row.Duration != want.Duration {
			t.Errorf("row %d Duration = %v, want %v", i, row.Duration, want.Duration)
		}
		if row.Changeover != want.Changeover {
			t.Errorf("row %d Changeover = %v, want %v", i, row.Changeover, want.Changeover)
		}
	}

	if !rows[0].Urgent {
		t.Error("first row should be urgent")
	}
	if want := intervals[0].Start.Add(15 * time.Hour); !rows[0].End().Equal(want) {
		t.Errorf("urgent End = %v, want %v", rows[0].End(), want)
	}
}

func TestIntervalsRejectsForeignSchema(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
	}, nil)

	builder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer builder.Release()
	builder.Field(0).(*array.StringBuilder).Append("x")

	record := builder.NewRecord()
	defer record.Release()

	if _, err := Intervals(record); err == nil {
		t.Error("expected error for foreign schema, got nil")
	}
}

func TestWriteScheduleFile(t *testing.T) {
	intervals := sampleIntervals()

	record := ScheduleRecord(memory.NewGoAllocator(), intervals)
	defer record.Release()

	path := filepath.Join(t.TempDir(), "out", "schedule.arrow")
	if err := WriteScheduleFile(path, record); err != nil {
		t.Fatalf("WriteScheduleFile: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open written file: %v", err)
	}
	defer file.Close()

	reader, err := ipc.NewFileReader(file)
	if err != nil {
		t.Fatalf("NewFileReader: %v", err)
	}
	defer reader.Close()

	if got := reader.NumRecords(); got != 1 {
		t.Fatalf("NumRecords = %d, want 1", got)
	}

	stored, err := reader.Record(0)
	if err != nil {
		t.Fatalf("Record(0): %v", err)
	}

	rows, err := Intervals(stored)
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(rows) != len(intervals) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(intervals))
	}
	if rows[2].BatchID != "BATCH-0003" {
		t.Errorf("last row BatchID = %s, want BATCH-0003", rows[2].BatchID)
	}
	if rows[2].Duration != 7*time.Hour {
		t.Errorf("last row Duration = %v, want 7h", rows[2].Duration)
	}
}
