// Package flight_server provides a Flight server for publishing schedule records.
package flight_server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/TFMV/batchpress/internal/arrowrec"
)

// FlightServer implements an Arrow Flight server for sharing schedule records
// between services with minimal serialization.
type FlightServer struct {
	flight.BaseFlightServer
	server      *grpc.Server
	listener    net.Listener
	addr        string
	log         *logrus.Logger
	schedules   map[string]arrow.Record
	schedulesMu sync.RWMutex
	allocator   memory.Allocator
	expirations map[string]time.Time
	ttl         time.Duration
	cancel      context.CancelFunc // Cancel function for cleanup goroutine
}

// ServerConfig contains configuration options for the Flight server
type ServerConfig struct {
	// Address to listen on (e.g., "localhost:8080")
	Addr string
	// Memory allocator to use
	Allocator memory.Allocator
	// TTL for stored schedules (default: 1 hour)
	TTL time.Duration
}

// NewFlightServer creates a new Arrow Flight server
func NewFlightServer(config ServerConfig) (*FlightServer, error) {
	if config.Addr == "" {
		config.Addr = "localhost:8080"
	}
	if config.Allocator == nil {
		config.Allocator = memory.NewGoAllocator()
	}
	if config.TTL == 0 {
		config.TTL = 1 * time.Hour
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	// Create the server without starting the listener yet
	server := &FlightServer{
		addr:        config.Addr,
		log:         log,
		schedules:   make(map[string]arrow.Record),
		expirations: make(map[string]time.Time),
		allocator:   config.Allocator,
		ttl:         config.TTL,
	}

	// Create a gRPC server with appropriate options
	server.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(64*1024*1024), // 64MB max message size
		grpc.MaxSendMsgSize(64*1024*1024), // 64MB max message size
	)

	// Register the Flight service
	flight.RegisterFlightServiceServer(server.server, server)

	// Start a goroutine to clean up expired schedules
	ctx, cancel := context.WithCancel(context.Background())
	server.cancel = cancel
	go server.cleanupExpiredSchedules(ctx)

	return server, nil
}

// Start starts the Flight server
func (s *FlightServer) Start() error {
	s.log.WithField("addr", s.addr).Info("Starting Arrow Flight server")

	// Create a listener
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	// Store the listener
	s.listener = listener

	// Serve in the current goroutine
	return s.server.Serve(listener)
}

// Stop stops the Flight server
func (s *FlightServer) Stop() {
	s.log.Info("Stopping Arrow Flight server")

	// Cancel the cleanup goroutine
	if s.cancel != nil {
		s.cancel()
	}

	// Clear all schedules to release memory
	s.schedulesMu.Lock()
	for id, schedule := range s.schedules {
		schedule.Release()
		delete(s.schedules, id)
		delete(s.expirations, id)
	}
	s.schedulesMu.Unlock()

	// Stop the gRPC server gracefully
	if s.server != nil {
		s.server.GracefulStop()
	}

	// Close the listener if it exists
	if s.listener != nil {
		s.listener.Close()
	}

	s.log.Info("Arrow Flight server stopped")
}

// GetFlightInfo implements the Flight GetFlightInfo method
func (s *FlightServer) GetFlightInfo(ctx context.Context, request *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	cmd := string(request.Cmd)

	s.schedulesMu.RLock()
	schedule, ok := s.schedules[cmd]
	s.schedulesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("schedule with ID %s not found", cmd)
	}

	endpoint := &flight.FlightEndpoint{
		Ticket: &flight.Ticket{Ticket: []byte(cmd)},
		Location: []*flight.Location{
			{Uri: fmt.Sprintf("grpc://%s", s.addr)},
		},
	}

	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(schedule.Schema(), s.allocator),
		FlightDescriptor: request,
		Endpoint:         []*flight.FlightEndpoint{endpoint},
		TotalRecords:     schedule.NumRows(),
		TotalBytes:       -1, // Unknown size
	}, nil
}

// DoGet implements the Flight DoGet method
func (s *FlightServer) DoGet(request *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	scheduleID := string(request.Ticket)

	s.schedulesMu.RLock()
	schedule, ok := s.schedules[scheduleID]
	s.schedulesMu.RUnlock()

	if !ok {
		return fmt.Errorf("schedule with ID %s not found", scheduleID)
	}

	// Create a writer for the stream
	writer := flight.NewRecordWriter(stream, ipc.WithSchema(schedule.Schema()))

	// Write the schedule to the stream and handle errors
	if err := writer.Write(schedule); err != nil {
		// Make sure to close the writer even if writing fails
		writer.Close()
		return fmt.Errorf("failed to write schedule to stream: %w", err)
	}

	// Close the writer to signal the end of the stream
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	return nil
}

// DoPut implements the Flight DoPut method
func (s *FlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	// Create a reader for the stream
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return fmt.Errorf("failed to create record reader: %w", err)
	}
	defer reader.Release()

	// Read the first record
	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return fmt.Errorf("error reading record: %w", err)
		}
		return fmt.Errorf("no record received")
	}

	// Get the record and retain it
	schedule := reader.Record()
	schedule.Retain() // Retain the record so it's not released when the reader is released
	defer func() {
		// If we exit with an error, make sure to release the record
		if schedule != nil {
			schedule.Release()
		}
	}()

	// Only schedule records are accepted on this plane
	if !schedule.Schema().Equal(arrowrec.ScheduleSchema) {
		return fmt.Errorf("record does not match schedule schema: %s", schedule.Schema())
	}

	// Generate a unique ID for the schedule
	scheduleID := generateScheduleID()

	// Store the schedule
	s.schedulesMu.Lock()
	s.schedules[scheduleID] = schedule
	s.expirations[scheduleID] = time.Now().Add(s.ttl)
	s.schedulesMu.Unlock()

	// We've successfully stored the schedule, so don't release it on exit
	schedule = nil

	// Send the schedule ID back to the client
	err = stream.Send(&flight.PutResult{
		AppMetadata: []byte(scheduleID),
	})
	if err != nil {
		// If we fail to send the result, remove the schedule from storage
		s.schedulesMu.Lock()
		if stored, ok := s.schedules[scheduleID]; ok {
			stored.Release()
			delete(s.schedules, scheduleID)
			delete(s.expirations, scheduleID)
		}
		s.schedulesMu.Unlock()
		return fmt.Errorf("failed to send result: %w", err)
	}

	return nil
}

// cleanupExpiredSchedules periodically removes expired schedules
func (s *FlightServer) cleanupExpiredSchedules(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.schedulesMu.Lock()
			for id, expiry := range s.expirations {
				if now.After(expiry) {
					if schedule, ok := s.schedules[id]; ok {
						schedule.Release()
						delete(s.schedules, id)
					}
					delete(s.expirations, id)
					s.log.WithField("schedule_id", id).Info("Removed expired schedule")
				}
			}
			s.schedulesMu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// UpdateScheduleTTL updates the expiration time for a schedule
func (s *FlightServer) UpdateScheduleTTL(scheduleID string, ttl time.Duration) bool {
	s.schedulesMu.Lock()
	defer s.schedulesMu.Unlock()

	if _, ok := s.schedules[scheduleID]; ok {
		s.expirations[scheduleID] = time.Now().Add(ttl)
		return true
	}
	return false
}

// HasSchedule checks if a schedule exists in the server
func (s *FlightServer) HasSchedule(scheduleID string) bool {
	s.schedulesMu.RLock()
	defer s.schedulesMu.RUnlock()
	_, ok := s.schedules[scheduleID]
	return ok
}

// DeleteSchedule deletes a schedule from the server
func (s *FlightServer) DeleteSchedule(scheduleID string) bool {
	s.schedulesMu.Lock()
	defer s.schedulesMu.Unlock()

	if schedule, ok := s.schedules[scheduleID]; ok {
		schedule.Release()
		delete(s.schedules, scheduleID)
		delete(s.expirations, scheduleID)
		return true
	}
	return false
}

// ListSchedules returns the IDs of all stored schedules
func (s *FlightServer) ListSchedules() []string {
	s.schedulesMu.RLock()
	defer s.schedulesMu.RUnlock()

	scheduleIDs := make([]string, 0, len(s.schedules))
	for id := range s.schedules {
		scheduleIDs = append(scheduleIDs, id)
	}
	return scheduleIDs
}

// generateScheduleID generates a unique ID for a schedule
func generateScheduleID() string {
	return uuid.New().String()
}
