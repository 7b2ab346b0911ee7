// Package arrowrec converts derived schedules to and from Apache Arrow records.
package arrowrec

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/batchpress/internal/types"
)

// ScheduleSchema is the Arrow schema for schedule records, one row per
// scheduled batch.
var ScheduleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "batch_id", Type: arrow.BinaryTypes.String},
	{Name: "print_mode", Type: arrow.BinaryTypes.String},
	{Name: "paper_type", Type: arrow.BinaryTypes.String},
	{Name: "order_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "total_quantity", Type: arrow.PrimitiveTypes.Int64},
	{Name: "urgent", Type: &arrow.BooleanType{}},
	{Name: "start", Type: arrow.FixedWidthTypes.Timestamp_ms},
	{Name: "duration_minutes", Type: arrow.PrimitiveTypes.Float64},
	{Name: "changeover_minutes", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// IntervalRow is a single scheduled batch read back from an Arrow record.
// It carries batch-level aggregates rather than the member orders.
type IntervalRow struct {
	BatchID       string
	PrintMode     types.PrintMode
	PaperType     types.PaperType
	OrderCount    int
	TotalQuantity int
	Urgent        bool
	Start         time.Time
	Duration      time.Duration
	Changeover    time.Duration
}

// End returns the finish time of the row's production run.
func (r IntervalRow) End() time.Time {
	return r.Start.Add(r.Duration)
}

// ScheduleRecord builds an Arrow record from a derived schedule.
// The caller owns the returned record and must Release it.
func ScheduleRecord(allocator memory.Allocator, intervals []types.Interval) arrow.Record {
	recordBuilder := array.NewRecordBuilder(allocator, ScheduleSchema)
	defer recordBuilder.Release()

	batchIDBuilder := recordBuilder.Field(0).(*array.StringBuilder)
	printModeBuilder := recordBuilder.Field(1).(*array.StringBuilder)
	paperTypeBuilder := recordBuilder.Field(2).(*array.StringBuilder)
	orderCountBuilder := recordBuilder.Field(3).(*array.Int64Builder)
	totalQuantityBuilder := recordBuilder.Field(4).(*array.Int64Builder)
	urgentBuilder := recordBuilder.Field(5).(*array.BooleanBuilder)
	startBuilder := recordBuilder.Field(6).(*array.TimestampBuilder)
	durationBuilder := recordBuilder.Field(7).(*array.Float64Builder)
	changeoverBuilder := recordBuilder.Field(8).(*array.Float64Builder)

	for _, interval := range intervals {
		batchIDBuilder.Append(interval.Batch.ID)
		printModeBuilder.Append(string(interval.Batch.PrintMode))
		paperTypeBuilder.Append(string(interval.Batch.PaperType))
		orderCountBuilder.Append(int64(len(interval.Batch.Orders)))
		totalQuantityBuilder.Append(int64(interval.Batch.TotalQuantity()))
		urgentBuilder.Append(interval.Batch.Urgent())
		startBuilder.Append(arrow.Timestamp(interval.Start.UnixMilli()))
		durationBuilder.Append(interval.Duration.Minutes())
		changeoverBuilder.Append(interval.Changeover.Minutes())
	}

	return recordBuilder.NewRecord()
}

// Intervals reads the rows of a schedule record back into typed form.
func Intervals(record arrow.Record) ([]IntervalRow, error) {
	if !record.Schema().Equal(ScheduleSchema) {
		return nil, fmt.Errorf("unexpected schedule schema: %s", record.Schema())
	}

	batchIDColumn := record.Column(0).(*array.String)
	printModeColumn := record.Column(1).(*array.String)
	paperTypeColumn := record.Column(2).(*array.String)
	orderCountColumn := record.Column(3).(*array.Int64)
	totalQuantityColumn := record.Column(4).(*array.Int64)
	urgentColumn := record.Column(5).(*array.Boolean)
	startColumn := record.Column(6).(*array.Timestamp)
	durationColumn := record.Column(7).(*array.Float64)
	changeoverColumn := record.Column(8).(*array.Float64)

	rows := make([]IntervalRow, record.NumRows())
	for i := 0; i < int(record.NumRows()); i++ {
		rows[i] = IntervalRow{
			BatchID:       batchIDColumn.Value(i),
			PrintMode:     types.PrintMode(printModeColumn.Value(i)),
			PaperType:     types.PaperType(paperTypeColumn.Value(i)),
			OrderCount:    int(orderCountColumn.Value(i)),
			TotalQuantity: int(totalQuantityColumn.Value(i)),
			Urgent:        urgentColumn.Value(i),
			Start:         time.UnixMilli(int64(startColumn.Value(i))).UTC(),
			Duration:      time.Duration(durationColumn.Value(i) * float64(time.Minute)),
			Changeover:    time.Duration(changeoverColumn.Value(i) * float64(time.Minute)),
		}
	}

	return rows, nil
}

// WriteScheduleFile saves a schedule record to an Arrow IPC file.
func WriteScheduleFile(path string, record arrow.Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer, err := ipc.NewFileWriter(file, ipc.WithSchema(record.Schema()))
	if err != nil {
		return fmt.Errorf("failed to create Arrow file writer: %w", err)
	}
	defer writer.Close()

	if err := writer.Write(record); err != nil {
		return fmt.Errorf("failed to write schedule record: %w", err)
	}

	return nil
}
