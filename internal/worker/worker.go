// Package worker provides a worker pool that turns plan requests into published schedules.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TFMV/batchpress/internal/arrowrec"
	"github.com/TFMV/batchpress/internal/types"
	"github.com/TFMV/batchpress/planner"
)

// Store is the slice of the metadata store the worker needs.
type Store interface {
	ListPendingRequests(ctx context.Context) ([]string, error)
	GetPlanRequest(ctx context.Context, requestID string) (*types.PlanRequest, error)
	MarkProcessing(ctx context.Context, requestID string) error
	MarkCompleted(ctx context.Context, requestID string) error
	IncrementRetry(ctx context.Context, requestID string) error
	HeartbeatRequest(ctx context.Context, requestID string) error
	ListOrders(ctx context.Context) ([]types.Order, error)
	SavePlan(ctx context.Context, summary types.PlanSummary) error
}

// Publisher stores schedule records and returns the ID they are retrievable under.
type Publisher interface {
	StoreSchedule(ctx context.Context, schedule arrow.Record) (string, error)
}

// Config contains configuration options for the Worker.
type Config struct {
	// Store is the metadata store holding orders and plan requests.
	Store Store

	// Publisher is used to publish computed schedule records.
	Publisher Publisher

	// Planner computes batches and schedules. Defaults to a planner with
	// default configuration.
	Planner *planner.Planner

	// Allocator is the memory allocator for schedule records.
	Allocator memory.Allocator

	// WorkerCount is the number of worker goroutines to spawn.
	WorkerCount int

	// PollInterval is how often to poll for pending plan requests.
	PollInterval time.Duration

	// HeartbeatInterval is how often to send heartbeats for in-progress requests.
	HeartbeatInterval time.Duration

	// BackoffMin is the minimum backoff duration for retrying failed requests.
	BackoffMin time.Duration

	// BackoffMax is the maximum backoff duration for retrying failed requests.
	BackoffMax time.Duration

	// BackoffFactor is the multiplicative factor for retry backoff.
	BackoffFactor float64

	// BackoffRandomization is a randomization factor for jittering retry backoff.
	BackoffRandomization float64
}

// Worker manages a pool of workers that plan pending requests.
type Worker struct {
	cfg          Config
	workers      int
	log          *logrus.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a new Worker with the given configuration.
func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	if cfg.Planner == nil {
		cfg.Planner = planner.New(planner.Config{})
	}

	if cfg.Allocator == nil {
		cfg.Allocator = memory.NewGoAllocator()
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}

	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = 1 * time.Second
	}

	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 5 * time.Minute
	}

	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = 2.0
	}

	if cfg.BackoffRandomization == 0 {
		cfg.BackoffRandomization = 0.2
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	return &Worker{
		cfg:        cfg,
		workers:    cfg.WorkerCount,
		log:        log,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Start starts the worker pool.
func (w *Worker) Start() {
	w.log.WithField("workers", w.workers).Info("Starting worker pool")

	// Start the worker goroutines
	w.wg.Add(w.workers)
	for i := 0; i < w.workers; i++ {
		go w.workerLoop(i)
	}
}

// Shutdown gracefully shuts down the worker pool.
func (w *Worker) Shutdown(ctx context.Context) error {
	var shutdownErr error

	w.shutdownOnce.Do(func() {
		w.log.Info("Shutting down worker pool")

		// Signal all workers to stop
		close(w.shutdownCh)

		// Create a channel to signal when wait is done
		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		// Wait for workers to finish or context to expire
		select {
		case <-done:
			w.log.Info("All workers shut down successfully")
		case <-ctx.Done():
			shutdownErr = ctx.Err()
			w.log.Error("Shutdown timed out:", shutdownErr)
		}
	})

	return shutdownErr
}

// workerLoop is the main loop for a worker goroutine.
func (w *Worker) workerLoop(workerID int) {
	defer w.wg.Done()

	workerLog := w.log.WithField("worker_id", workerID)
	workerLog.Info("Worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Poll for pending plan requests
			if err := w.processPendingRequest(context.Background()); err != nil {
				if !errors.Is(err, ErrNoRequestAvailable) {
					workerLog.Error("Worker error:", err)
				}
			}
		case <-w.shutdownCh:
			workerLog.Info("Worker shutting down")
			return
		}
	}
}

// ErrNoRequestAvailable is returned when no plan requests are available for processing.
var ErrNoRequestAvailable = errors.New("no plan request available")

// processPendingRequest plans a single pending request from the store.
func (w *Worker) processPendingRequest(ctx context.Context) error {
	// List pending requests
	pendingRequests, err := w.cfg.Store.ListPendingRequests(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	// If no pending requests, return early
	if len(pendingRequests) == 0 {
		return ErrNoRequestAvailable
	}

	// Pick a random request from the pending list
	// This avoids multiple workers all grabbing the same request
	requestID := pendingRequests[rand.Intn(len(pendingRequests))]

	// Get the request metadata
	request, err := w.cfg.Store.GetPlanRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get metadata for request %s: %w", requestID, err)
	}

	// Check if we should apply backoff based on retry count
	if request.RetryCount > 0 {
		backoffDuration := w.calculateBackoff(request.RetryCount)
		sinceLastAttempt := time.Since(request.LastAttempt)

		if sinceLastAttempt < backoffDuration {
			// Not time to retry yet
			return ErrNoRequestAvailable
		}
	}

	// Mark the request as processing
	if err := w.cfg.Store.MarkProcessing(ctx, requestID); err != nil {
		return fmt.Errorf("failed to mark request %s as processing: %w", requestID, err)
	}

	// Start heartbeat goroutine
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	var heartbeatWg sync.WaitGroup
	heartbeatWg.Add(1)

	go func() {
		defer heartbeatWg.Done()
		w.heartbeatLoop(heartbeatCtx, requestID)
	}()

	// Ensure the heartbeat is stopped when we're done
	defer func() {
		cancelHeartbeat()
		heartbeatWg.Wait()
	}()

	// Load the current order list
	orders, err := w.cfg.Store.ListOrders(ctx)
	if err != nil {
		if incrementErr := w.cfg.Store.IncrementRetry(ctx, requestID); incrementErr != nil {
			w.log.WithField("request_id", requestID).Error("Failed to increment retry:", incrementErr)
		}
		return fmt.Errorf("failed to list orders for request %s: %w", requestID, err)
	}

	if err := planner.ValidateOrders(orders); err != nil {
		if incrementErr := w.cfg.Store.IncrementRetry(ctx, requestID); incrementErr != nil {
			w.log.WithField("request_id", requestID).Error("Failed to increment retry:", incrementErr)
		}
		return fmt.Errorf("invalid orders for request %s: %w", requestID, err)
	}

	// Compute the plan
	start := request.Start
	if start.IsZero() {
		start = time.Now()
	}

	batches := w.cfg.Planner.Build(orders)
	intervals, metrics := w.cfg.Planner.Derive(batches, start)

	// Publish the schedule record
	record := arrowrec.ScheduleRecord(w.cfg.Allocator, intervals)
	defer record.Release()

	scheduleID, err := w.cfg.Publisher.StoreSchedule(ctx, record)
	if err != nil {
		if incrementErr := w.cfg.Store.IncrementRetry(ctx, requestID); incrementErr != nil {
			w.log.WithField("request_id", requestID).Error("Failed to increment retry:", incrementErr)
		}
		return fmt.Errorf("failed to publish schedule for request %s: %w", requestID, err)
	}

	// Record the plan summary
	summary := types.PlanSummary{
		PlanID:     uuid.New().String(),
		RequestID:  requestID,
		ScheduleID: scheduleID,
		BatchCount: len(batches),
		Metrics:    metrics,
		CreatedAt:  time.Now(),
	}

	if err := w.cfg.Store.SavePlan(ctx, summary); err != nil {
		if incrementErr := w.cfg.Store.IncrementRetry(ctx, requestID); incrementErr != nil {
			w.log.WithField("request_id", requestID).Error("Failed to increment retry:", incrementErr)
		}
		return fmt.Errorf("failed to save plan for request %s: %w", requestID, err)
	}

	// If planning succeeded, mark as completed
	if err := w.cfg.Store.MarkCompleted(ctx, requestID); err != nil {
		return fmt.Errorf("failed to mark request %s as completed: %w", requestID, err)
	}

	w.log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"plan_id":     summary.PlanID,
		"schedule_id": scheduleID,
		"batches":     summary.BatchCount,
		"saved":       metrics.Saved,
	}).Info("Successfully planned request")
	return nil
}

// heartbeatLoop periodically sends heartbeats to the store for a request that's being planned.
func (w *Worker) heartbeatLoop(ctx context.Context, requestID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.cfg.Store.HeartbeatRequest(ctx, requestID); err != nil {
				w.log.WithField("request_id", requestID).Error("Failed to send heartbeat:", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// calculateBackoff calculates the backoff duration based on retry count and jitter.
func (w *Worker) calculateBackoff(retryCount int) time.Duration {
	// Calculate backoff with exponential increase
	backoff := float64(w.cfg.BackoffMin) * math.Pow(w.cfg.BackoffFactor, float64(retryCount-1))

	// Apply max cap
	if backoff > float64(w.cfg.BackoffMax) {
		backoff = float64(w.cfg.BackoffMax)
	}

	// Apply jitter
	jitter := 1.0 + (rand.Float64()*2.0-1.0)*w.cfg.BackoffRandomization
	backoff = backoff * jitter

	return time.Duration(backoff)
}
