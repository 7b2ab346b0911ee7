// Package flight_client provides a client for storing and retrieving schedule records.
package flight_client

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// FlightClient is a client for retrieving and storing schedule records.
type FlightClient struct {
	client    flight.Client
	allocator memory.Allocator
	conn      *grpc.ClientConn
}

// ClientConfig contains configuration options for the Flight client.
type ClientConfig struct {
	// Address of the Flight server to connect to (e.g., "localhost:8080")
	Addr string

	// Allocator is the memory allocator to use
	Allocator memory.Allocator

	// Timeout for connection attempts (default: 5 seconds)
	ConnectionTimeout time.Duration
}

// NewFlightClient creates a new Flight client.
func NewFlightClient(ctx context.Context, config ClientConfig) (*FlightClient, error) {
	if config.Addr == "" {
		config.Addr = "localhost:8080"
	}

	if config.Allocator == nil {
		config.Allocator = memory.NewGoAllocator()
	}

	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 5 * time.Second
	}

	// Set up context with timeout for connection
	ctxWithTimeout, cancel := context.WithTimeout(ctx, config.ConnectionTimeout)
	defer cancel()

	// Connect to the Flight server with appropriate options
	conn, err := grpc.DialContext(
		ctxWithTimeout,
		config.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(64*1024*1024),
			grpc.MaxCallSendMsgSize(64*1024*1024),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Flight server at %s: %w", config.Addr, err)
	}

	// Create a Flight client
	client, err := flight.NewClientWithMiddlewareCtx(
		ctx,
		config.Addr,
		nil, // auth handler
		nil, // middleware
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create Flight client: %w", err)
	}

	return &FlightClient{
		client:    client,
		allocator: config.Allocator,
		conn:      conn,
	}, nil
}

// StoreSchedule stores a schedule record in the Flight server and returns the schedule ID.
func (c *FlightClient) StoreSchedule(ctx context.Context, schedule arrow.Record) (string, error) {
	if schedule == nil {
		return "", fmt.Errorf("cannot store nil schedule")
	}

	// Create a FlightDescriptor for the schedule
	descriptor := &flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  []byte("store"), // Command is just a marker, actual ID is returned from server
	}

	// Create a FlightPutWriter to send the schedule to the server
	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create Flight writer: %w", err)
	}

	// Create a writer for the stream
	writer := flight.NewRecordWriter(stream, ipc.WithSchema(schedule.Schema()))

	// Set the descriptor for the first message
	writer.SetFlightDescriptor(descriptor)

	// Write the schedule to the stream
	if err := writer.Write(schedule); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write schedule to Flight server: %w", err)
	}

	// Close the writer to flush all data
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close Flight writer: %w", err)
	}

	// Receive the response from the server
	result, err := stream.Recv()
	if err != nil {
		return "", fmt.Errorf("failed to receive response from server: %w", err)
	}

	// The server returns the schedule ID in the app metadata of the first result
	if len(result.AppMetadata) == 0 {
		return "", fmt.Errorf("no schedule ID received from server")
	}

	// Return the schedule ID from the server
	return string(result.AppMetadata), nil
}

// GetSchedule retrieves a schedule record from the Flight server.
func (c *FlightClient) GetSchedule(ctx context.Context, scheduleID string) (arrow.Record, error) {
	if scheduleID == "" {
		return nil, fmt.Errorf("schedule ID cannot be empty")
	}

	// Get flight info for the schedule
	info, err := c.getFlightInfo(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	// Validate that we have at least one endpoint
	if len(info.Endpoint) == 0 {
		return nil, fmt.Errorf("no endpoints available for schedule %s", scheduleID)
	}

	// Get the endpoint (should be just one for this simple case)
	endpoint := info.Endpoint[0]

	// Create a ticket from the endpoint
	ticket := endpoint.Ticket

	// DoGet to retrieve the schedule
	stream, err := c.client.DoGet(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream for schedule %s: %w", scheduleID, err)
	}

	// Create a reader from the stream
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create record reader for schedule %s: %w", scheduleID, err)
	}
	defer reader.Release()

	// We expect only a single record to be returned
	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("error reading schedule %s: %w", scheduleID, err)
		}
		return nil, fmt.Errorf("no data returned for schedule %s", scheduleID)
	}

	// Get the record and retain it so it's not released when the reader is released
	record := reader.Record()
	record.Retain()

	return record, nil
}

// getFlightInfo retrieves flight info for a schedule.
func (c *FlightClient) getFlightInfo(ctx context.Context, scheduleID string) (*flight.FlightInfo, error) {
	// Create a descriptor for the schedule
	descriptor := &flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  []byte(scheduleID),
	}

	// Get flight info
	info, err := c.client.GetFlightInfo(ctx, descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to get flight info for schedule %s: %w", scheduleID, err)
	}

	return info, nil
}

// Close releases resources associated with the client.
func (c *FlightClient) Close() error {
	if closer, ok := c.client.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
