package types

import (
	"testing"
	"time"
)

func TestPlanRequestBinaryRoundTrip(t *testing.T) {
	req := PlanRequest{
		RequestID:   "req-1",
		Status:      PlanStatusProcessing,
		RetryCount:  2,
		CreatedAt:   time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		LastAttempt: time.Date(2025, 3, 10, 8, 5, 0, 0, time.UTC),
		Start:       time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
	}

	data, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got PlanRequest
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if got.RequestID != req.RequestID || got.Status != req.Status || got.RetryCount != req.RetryCount {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
	if !got.Start.Equal(req.Start) {
		t.Errorf("Start = %v, want %v", got.Start, req.Start)
	}
}

func TestPlanSummaryBinaryRoundTrip(t *testing.T) {
	summary := PlanSummary{
		PlanID:     "plan-1",
		RequestID:  "req-1",
		ScheduleID: "sched-1",
		BatchCount: 3,
		Metrics: Metrics{
			TotalOrders:            3,
			TotalBatches:           3,
			TotalChangeovers:       2,
			ChangeoverTime:         40 * time.Minute,
			BaselineChangeovers:    2,
			BaselineChangeoverTime: 40 * time.Minute,
		},
		CreatedAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}

	data, err := summary.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got PlanSummary
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	if got.PlanID != summary.PlanID || got.BatchCount != summary.BatchCount {
		t.Errorf("round trip = %+v, want %+v", got, summary)
	}
	if got.Metrics.ChangeoverTime != 40*time.Minute {
		t.Errorf("Metrics.ChangeoverTime = %v, want 40m", got.Metrics.ChangeoverTime)
	}
}
