// Package store provides a Valkey-backed storage layer for print orders and plan requests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	valkey "github.com/valkey-io/valkey-go"

	"github.com/TFMV/batchpress/internal/types"
)

const (
	// keyPrefix is used for all keys in Valkey to avoid collisions with other applications
	keyPrefix = "batchpress:"

	// ordersKey is the key for the list of submitted print orders
	ordersKey = keyPrefix + "orders"

	// pendingSetKey is the key for the set of pending plan request IDs
	pendingSetKey = keyPrefix + "pending_requests"

	// processingSetKey is the key for the set of processing plan request IDs
	processingSetKey = keyPrefix + "processing_requests"

	// requestKeyPrefix is the prefix for plan request metadata
	requestKeyPrefix = keyPrefix + "request:"

	// latestPlanKey is the key holding the most recently completed plan summary
	latestPlanKey = keyPrefix + "latest_plan"

	// defaultHeartbeatInterval is how often workers should update the last attempt time
	defaultHeartbeatInterval = 5 * time.Second

	// defaultMaxRetries is the default maximum number of retries for a plan request
	defaultMaxRetries = 3
)

// ErrNoPlan is returned by LatestPlan when no plan has been saved yet.
var ErrNoPlan = errors.New("no plan available")

// Config contains configuration options for the Store
type Config struct {
	// Addr is the address of the Valkey server
	Addr string

	// Password is the password for the Valkey server (optional)
	Password string

	// HeartbeatInterval is how often workers should update the last attempt time
	HeartbeatInterval time.Duration

	// MaxRetries is the maximum number of retries for a plan request before it's
	// considered permanently failed
	MaxRetries int
}

// Store manages print orders and plan request metadata using Valkey
type Store struct {
	client                valkey.Client
	cfg                   Config
	log                   *logrus.Logger
	shutdownCh            chan struct{}
	wg                    sync.WaitGroup
	expireStaleRequestsMu sync.Mutex
}

// New creates a new Store with the given configuration
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	// Initialize the Valkey client
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Ping the server to ensure connectivity
	pingCmd := client.B().Ping().Build()
	if err := client.Do(context.Background(), pingCmd).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	s := &Store{
		client:     client,
		cfg:        cfg,
		log:        log,
		shutdownCh: make(chan struct{}),
	}

	// Start background task to requeue stale plan requests
	s.wg.Add(1)
	go s.expireStaleRequestsLoop()

	return s, nil
}

// requestKey returns the full key for a plan request's metadata
func requestKey(requestID string) string {
	return requestKeyPrefix + requestID
}

// AddOrder validates an order and appends it to the order list
func (s *Store) AddOrder(ctx context.Context, order types.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}

	orderBytes, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
	}

	rpushCmd := s.client.B().Rpush().Key(ordersKey).Element(string(orderBytes)).Build()
	if err := s.client.Do(ctx, rpushCmd).Error(); err != nil {
		return fmt.Errorf("failed to append order %s: %w", order.ID, err)
	}

	return nil
}

// ListOrders returns all submitted orders in insertion order
func (s *Store) ListOrders(ctx context.Context) ([]types.Order, error) {
	lrangeCmd := s.client.B().Lrange().Key(ordersKey).Start(0).Stop(-1).Build()
	resp := s.client.Do(ctx, lrangeCmd)
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	entries, err := resp.AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to convert orders to string slice: %w", err)
	}

	orders := make([]types.Order, 0, len(entries))
	for _, entry := range entries {
		var order types.Order
		if err := json.Unmarshal([]byte(entry), &order); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order entry: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// CountOrders returns the number of submitted orders
func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	llenCmd := s.client.B().Llen().Key(ordersKey).Build()
	resp := s.client.Do(ctx, llenCmd)
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}

	count, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to convert order count: %w", err)
	}
	return count, nil
}

// ResetOrders replaces the order list with the given seed orders
func (s *Store) ResetOrders(ctx context.Context, seed []types.Order) error {
	elements := make([]string, 0, len(seed))
	for _, order := range seed {
		if err := order.Validate(); err != nil {
			return err
		}
		orderBytes, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal seed order %s: %w", order.ID, err)
		}
		elements = append(elements, string(orderBytes))
	}

	// Use a MULTI to clear and reseed atomically
	multiCmd := s.client.B().Multi().Build()
	delCmd := s.client.B().Del().Key(ordersKey).Build()
	execCmd := s.client.B().Exec().Build()

	resp := s.client.Do(ctx, multiCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to initiate MULTI for order reset: %w", err)
	}

	resp = s.client.Do(ctx, delCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to queue DEL for order reset: %w", err)
	}

	if len(elements) > 0 {
		rpushCmd := s.client.B().Rpush().Key(ordersKey).Element(elements...).Build()
		resp = s.client.Do(ctx, rpushCmd)
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to queue RPUSH for order reset: %w", err)
		}
	}

	resp = s.client.Do(ctx, execCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to EXEC transaction for order reset: %w", err)
	}

	return nil
}

// SubmitPlanRequest registers a new plan request and returns its ID
func (s *Store) SubmitPlanRequest(ctx context.Context, start time.Time) (string, error) {
	requestID := uuid.New().String()

	// Create metadata for the request
	request := types.PlanRequest{
		RequestID:   requestID,
		Status:      types.PlanStatusPending,
		RetryCount:  0,
		CreatedAt:   time.Now(),
		LastAttempt: time.Time{}, // Zero time
		Start:       start,
	}

	// Serialize the metadata to JSON
	requestBytes, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan request: %w", err)
	}

	// Use a MULTI to execute both commands atomically
	multiCmd := s.client.B().Multi().Build()
	setCmd := s.client.B().Set().Key(requestKey(requestID)).Value(string(requestBytes)).Build()
	saddCmd := s.client.B().Sadd().Key(pendingSetKey).Member(requestID).Build()
	execCmd := s.client.B().Exec().Build()

	resp := s.client.Do(ctx, multiCmd)
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("failed to initiate MULTI for request %s: %w", requestID, err)
	}

	// Queue the commands
	resp = s.client.Do(ctx, setCmd)
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("failed to queue SET for request %s: %w", requestID, err)
	}

	resp = s.client.Do(ctx, saddCmd)
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("failed to queue SADD for request %s: %w", requestID, err)
	}

	// Execute the transaction
	resp = s.client.Do(ctx, execCmd)
	if err := resp.Error(); err != nil {
		return "", fmt.Errorf("failed to EXEC transaction for request %s: %w", requestID, err)
	}

	return requestID, nil
}

// ListPendingRequests returns a list of pending plan request IDs
func (s *Store) ListPendingRequests(ctx context.Context) ([]string, error) {
	// Get all members of the pending set
	smembersCmd := s.client.B().Smembers().Key(pendingSetKey).Build()
	resp := s.client.Do(ctx, smembersCmd)
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	members, err := resp.AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to convert pending requests to string slice: %w", err)
	}
	return members, nil
}

// GetPlanRequest retrieves the metadata for a plan request
func (s *Store) GetPlanRequest(ctx context.Context, requestID string) (*types.PlanRequest, error) {
	getCmd := s.client.B().Get().Key(requestKey(requestID)).Build()
	resp := s.client.Do(ctx, getCmd)
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("failed to get metadata for request %s: %w", requestID, err)
	}

	requestStr, err := resp.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to convert metadata to string for request %s: %w", requestID, err)
	}

	var request types.PlanRequest
	if err := json.Unmarshal([]byte(requestStr), &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata for request %s: %w", requestID, err)
	}

	return &request, nil
}

// MarkProcessing updates a plan request status to processing
func (s *Store) MarkProcessing(ctx context.Context, requestID string) error {
	request, err := s.GetPlanRequest(ctx, requestID)
	if err != nil {
		return err
	}

	// Update metadata
	request.Status = types.PlanStatusProcessing
	request.LastAttempt = time.Now()

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal updated metadata for request %s: %w", requestID, err)
	}

	// Use a MULTI to update metadata and sets atomically
	multiCmd := s.client.B().Multi().Build()
	setCmd := s.client.B().Set().Key(requestKey(requestID)).Value(string(requestBytes)).Build()
	sremCmd := s.client.B().Srem().Key(pendingSetKey).Member(requestID).Build()
	saddCmd := s.client.B().Sadd().Key(processingSetKey).Member(requestID).Build()
	execCmd := s.client.B().Exec().Build()

	resp := s.client.Do(ctx, multiCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to initiate MULTI for request %s: %w", requestID, err)
	}

	resp = s.client.Do(ctx, setCmd)
	resp = s.client.Do(ctx, sremCmd)
	resp = s.client.Do(ctx, saddCmd)

	resp = s.client.Do(ctx, execCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to EXEC transaction for request %s: %w", requestID, err)
	}

	return nil
}

// MarkCompleted updates a plan request status to completed
func (s *Store) MarkCompleted(ctx context.Context, requestID string) error {
	request, err := s.GetPlanRequest(ctx, requestID)
	if err != nil {
		return err
	}

	// Update metadata
	request.Status = types.PlanStatusCompleted
	request.LastAttempt = time.Now()

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal updated metadata for request %s: %w", requestID, err)
	}

	// Use a MULTI to update metadata and sets atomically
	multiCmd := s.client.B().Multi().Build()
	setCmd := s.client.B().Set().Key(requestKey(requestID)).Value(string(requestBytes)).Build()
	sremPendingCmd := s.client.B().Srem().Key(pendingSetKey).Member(requestID).Build()
	sremProcessingCmd := s.client.B().Srem().Key(processingSetKey).Member(requestID).Build()
	execCmd := s.client.B().Exec().Build()

	resp := s.client.Do(ctx, multiCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to initiate MULTI for request %s: %w", requestID, err)
	}

	resp = s.client.Do(ctx, setCmd)
	resp = s.client.Do(ctx, sremPendingCmd)
	resp = s.client.Do(ctx, sremProcessingCmd)

	resp = s.client.Do(ctx, execCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to EXEC transaction for request %s: %w", requestID, err)
	}

	return nil
}

// IncrementRetry increments the retry count for a plan request and updates its status
func (s *Store) IncrementRetry(ctx context.Context, requestID string) error {
	request, err := s.GetPlanRequest(ctx, requestID)
	if err != nil {
		return err
	}

	// Increment retry count
	request.RetryCount++
	request.LastAttempt = time.Now()

	// If we've exceeded max retries, mark as failed, otherwise back to pending
	if request.RetryCount > s.cfg.MaxRetries {
		request.Status = types.PlanStatusFailed
	} else {
		request.Status = types.PlanStatusPending
	}

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal updated metadata for request %s: %w", requestID, err)
	}

	// Use a MULTI to update metadata and sets atomically
	multiCmd := s.client.B().Multi().Build()
	setCmd := s.client.B().Set().Key(requestKey(requestID)).Value(string(requestBytes)).Build()
	sremProcessingCmd := s.client.B().Srem().Key(processingSetKey).Member(requestID).Build()

	// Add or remove from pending based on status
	var pendingCmd valkey.Completed
	if request.Status == types.PlanStatusPending {
		pendingCmd = s.client.B().Sadd().Key(pendingSetKey).Member(requestID).Build()
	} else {
		pendingCmd = s.client.B().Srem().Key(pendingSetKey).Member(requestID).Build()
	}

	execCmd := s.client.B().Exec().Build()

	resp := s.client.Do(ctx, multiCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to initiate MULTI for request %s: %w", requestID, err)
	}

	resp = s.client.Do(ctx, setCmd)
	resp = s.client.Do(ctx, sremProcessingCmd)
	resp = s.client.Do(ctx, pendingCmd)

	resp = s.client.Do(ctx, execCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to EXEC transaction for request %s: %w", requestID, err)
	}

	return nil
}

// HeartbeatRequest updates the LastAttempt time for a request that's still being processed
func (s *Store) HeartbeatRequest(ctx context.Context, requestID string) error {
	request, err := s.GetPlanRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get metadata for request %s: %w", requestID, err)
	}

	// Only update if the request is still processing
	if request.Status != types.PlanStatusProcessing {
		return nil
	}

	// Update the last attempt time
	request.LastAttempt = time.Now()

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal updated metadata for request %s: %w", requestID, err)
	}

	setCmd := s.client.B().Set().Key(requestKey(requestID)).Value(string(requestBytes)).Build()
	resp := s.client.Do(ctx, setCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to update heartbeat for request %s: %w", requestID, err)
	}

	return nil
}

// SavePlan stores the summary of a completed plan as the latest plan
func (s *Store) SavePlan(ctx context.Context, summary types.PlanSummary) error {
	summaryBytes, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal plan summary %s: %w", summary.PlanID, err)
	}

	setCmd := s.client.B().Set().Key(latestPlanKey).Value(string(summaryBytes)).Build()
	if err := s.client.Do(ctx, setCmd).Error(); err != nil {
		return fmt.Errorf("failed to save plan %s: %w", summary.PlanID, err)
	}

	return nil
}

// LatestPlan retrieves the most recently saved plan summary.
// Returns ErrNoPlan when no plan has been saved.
func (s *Store) LatestPlan(ctx context.Context) (*types.PlanSummary, error) {
	getCmd := s.client.B().Get().Key(latestPlanKey).Build()
	resp := s.client.Do(ctx, getCmd)
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNoPlan
		}
		return nil, fmt.Errorf("failed to get latest plan: %w", err)
	}

	summaryStr, err := resp.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to convert latest plan to string: %w", err)
	}

	var summary types.PlanSummary
	if err := json.Unmarshal([]byte(summaryStr), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest plan: %w", err)
	}

	return &summary, nil
}

// expireStaleRequestsLoop runs in the background and periodically requeues stale requests
func (s *Store) expireStaleRequestsLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expireStaleRequests(context.Background())
		case <-s.shutdownCh:
			return
		}
	}
}

// expireStaleRequests checks for requests that have been processing for too long
// and marks them for retry
func (s *Store) expireStaleRequests(ctx context.Context) {
	s.expireStaleRequestsMu.Lock()
	defer s.expireStaleRequestsMu.Unlock()

	// Get all requests in the processing set
	smembersCmd := s.client.B().Smembers().Key(processingSetKey).Build()
	resp := s.client.Do(ctx, smembersCmd)
	if err := resp.Error(); err != nil {
		s.log.Error("Failed to list processing requests:", err)
		return
	}

	processingRequests, err := resp.AsStrSlice()
	if err != nil {
		s.log.Error("Failed to convert processing requests to string slice:", err)
		return
	}
	staleThreshold := time.Now().Add(-s.cfg.HeartbeatInterval * 3)

	for _, requestID := range processingRequests {
		request, err := s.GetPlanRequest(ctx, requestID)
		if err != nil {
			s.log.WithField("request_id", requestID).Error("Failed to get metadata for stale check:", err)
			continue
		}

		// Check if the request is stale
		if request.LastAttempt.Before(staleThreshold) {
			// Worker likely died, so increment retry count
			if err := s.IncrementRetry(ctx, requestID); err != nil {
				s.log.WithField("request_id", requestID).Error("Failed to increment retry for stale request:", err)
			}
		}
	}
}

// ExpireOldRequests removes plan requests older than the specified TTL
func (s *Store) ExpireOldRequests(ctx context.Context, ttl time.Duration) error {
	// Get all keys with request prefix
	keysCmd := s.client.B().Keys().Pattern(requestKeyPrefix + "*").Build()
	resp := s.client.Do(ctx, keysCmd)
	if err := resp.Error(); err != nil {
		return fmt.Errorf("failed to list plan request keys: %w", err)
	}

	keys, err := resp.AsStrSlice()
	if err != nil {
		return fmt.Errorf("failed to convert keys to string slice: %w", err)
	}
	expireThreshold := time.Now().Add(-ttl)

	for _, key := range keys {
		requestID := key[len(requestKeyPrefix):]
		request, err := s.GetPlanRequest(ctx, requestID)
		if err != nil {
			s.log.WithField("key", key).Error("Failed to get metadata for expiry check:", err)
			continue
		}

		// Check if the request is older than the TTL
		if request.CreatedAt.Before(expireThreshold) {
			// Use a MULTI to remove the request
			multiCmd := s.client.B().Multi().Build()
			sremPendingCmd := s.client.B().Srem().Key(pendingSetKey).Member(requestID).Build()
			sremProcessingCmd := s.client.B().Srem().Key(processingSetKey).Member(requestID).Build()
			delCmd := s.client.B().Del().Key(key).Build()
			execCmd := s.client.B().Exec().Build()

			resp = s.client.Do(ctx, multiCmd)
			if err := resp.Error(); err != nil {
				s.log.WithField("request_id", requestID).Error("Failed to initiate MULTI for expired request:", err)
				continue
			}

			s.client.Do(ctx, sremPendingCmd)
			s.client.Do(ctx, sremProcessingCmd)
			s.client.Do(ctx, delCmd)

			resp = s.client.Do(ctx, execCmd)
			if err := resp.Error(); err != nil {
				s.log.WithField("request_id", requestID).Error("Failed to EXEC transaction for expired request:", err)
			}
		}
	}

	return nil
}

// Shutdown gracefully shuts down the store
func (s *Store) Shutdown(ctx context.Context) error {
	// Signal background goroutines to exit
	close(s.shutdownCh)

	// Wait for goroutines to finish
	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	// Wait for either context done or goroutines finished
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	case <-waitCh:
		// All goroutines finished
	}

	// Close the client
	s.client.Close()
	return nil
}
