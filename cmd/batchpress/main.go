// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TFMV/batchpress/dashboard"
	"github.com/TFMV/batchpress/flight_client"
	"github.com/TFMV/batchpress/flight_server"
	"github.com/TFMV/batchpress/internal/worker"
	"github.com/TFMV/batchpress/planner"
	"github.com/TFMV/batchpress/store"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/joho/godotenv"
)

// Options for command-line flags
type Options struct {
	// Mode determines which components to run
	Mode string

	// Valkey connection parameters
	ValkeyAddr     string
	ValkeyPassword string

	// Flight connection parameters
	FlightAddr string

	// Dashboard parameters
	HTTPAddr string

	// Worker parameters
	WorkerCount  int
	PollInterval time.Duration
	MaxRetries   int

	// Planner parameters
	Throughput      int
	Changeover      time.Duration
	UrgentThreshold int
}

func main() {
	// Load a .env file if one is present; flags still win
	_ = godotenv.Load()

	// Parse command line flags
	opts := parseFlags()

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal %v, initiating shutdown...\n", sig)
		cancel()
	}()

	// Create allocator for Arrow
	allocator := memory.NewGoAllocator()

	// Planner shared by workers and the dashboard
	plan := planner.New(planner.Config{
		ThroughputPerHour: opts.Throughput,
		Changeover:        opts.Changeover,
		UrgentThreshold:   opts.UrgentThreshold,
	})

	// Start components based on mode
	var flightServer *flight_server.FlightServer
	var orderStore *store.Store
	var flightClient *flight_client.FlightClient
	var work *worker.Worker
	var dash *dashboard.Server

	// Start components based on the selected mode
	switch opts.Mode {
	case "all", "flight":
		// Create and start the Flight server
		serverCfg := flight_server.ServerConfig{
			Addr:      opts.FlightAddr,
			Allocator: allocator,
		}

		var err error
		flightServer, err = flight_server.NewFlightServer(serverCfg)
		if err != nil {
			log.Fatalf("Failed to create Flight server: %v", err)
		}
		go func() {
			if err := flightServer.Start(); err != nil {
				log.Printf("Flight server error: %v", err)
			}
		}()
		fmt.Println("Flight server started")
	}

	switch opts.Mode {
	case "all", "dashboard", "worker":
		// Create the order store
		storeCfg := store.Config{
			Addr:       opts.ValkeyAddr,
			Password:   opts.ValkeyPassword,
			MaxRetries: opts.MaxRetries,
		}

		var err error
		orderStore, err = store.New(storeCfg)
		if err != nil {
			log.Fatalf("Failed to create store: %v", err)
		}
		fmt.Println("Store started")
	}

	switch opts.Mode {
	case "all", "worker":
		// Create Flight client
		clientCfg := flight_client.ClientConfig{
			Addr:      opts.FlightAddr,
			Allocator: allocator,
		}

		var err error
		flightClient, err = flight_client.NewFlightClient(ctx, clientCfg)
		if err != nil {
			log.Fatalf("Failed to create Flight client: %v", err)
		}
		fmt.Println("Flight client started")

		// Create and start worker
		workerCfg := worker.Config{
			Store:        orderStore,
			Publisher:    flightClient,
			Planner:      plan,
			Allocator:    allocator,
			WorkerCount:  opts.WorkerCount,
			PollInterval: opts.PollInterval,
		}

		work, err = worker.New(workerCfg)
		if err != nil {
			log.Fatalf("Failed to create worker: %v", err)
		}

		work.Start()
		fmt.Println("Worker started")
	}

	switch opts.Mode {
	case "all", "dashboard":
		// Create and start the dashboard
		dashCfg := dashboard.Config{
			Addr:    opts.HTTPAddr,
			Store:   orderStore,
			Planner: plan,
		}

		var err error
		dash, err = dashboard.NewServer(dashCfg)
		if err != nil {
			log.Fatalf("Failed to create dashboard: %v", err)
		}
		go func() {
			if err := dash.Start(); err != nil {
				log.Fatalf("Dashboard server failed: %v", err)
			}
		}()
		fmt.Printf("Dashboard started on http://%s\n", opts.HTTPAddr)
	}

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("Shutdown initiated")

	// Create a context with timeout for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown components in reverse order
	if dash != nil {
		if err := dash.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error shutting down dashboard: %v\n", err)
		}
	}

	if work != nil {
		if err := work.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error shutting down worker: %v\n", err)
		}
	}

	if flightClient != nil {
		if err := flightClient.Close(); err != nil {
			fmt.Printf("Error closing Flight client: %v\n", err)
		}
	}

	if orderStore != nil {
		if err := orderStore.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error shutting down store: %v\n", err)
		}
	}

	if flightServer != nil {
		flightServer.Stop()
	}

	fmt.Println("Shutdown complete")
}

func parseFlags() *Options {
	opts := &Options{}

	// Define flags
	flag.StringVar(&opts.Mode, "mode", "all", "Operation mode: 'all', 'dashboard', 'worker', or 'flight'")
	flag.StringVar(&opts.ValkeyAddr, "valkey-addr", getEnv("VALKEY_ADDR", "localhost:6379"), "Valkey server address")
	flag.StringVar(&opts.ValkeyPassword, "valkey-password", getEnv("VALKEY_PASSWORD", ""), "Valkey server password")
	flag.StringVar(&opts.FlightAddr, "flight-addr", getEnv("FLIGHT_ADDR", "localhost:8080"), "Arrow Flight server address")
	flag.StringVar(&opts.HTTPAddr, "http-addr", getEnv("HTTP_ADDR", "localhost:8090"), "Dashboard HTTP address")
	flag.IntVar(&opts.WorkerCount, "workers", 2, "Number of worker goroutines")
	flag.DurationVar(&opts.PollInterval, "poll-interval", 5*time.Second, "Polling interval for workers")
	flag.IntVar(&opts.MaxRetries, "max-retries", 3, "Maximum number of retries for failed plan requests")
	flag.IntVar(&opts.Throughput, "throughput", 1000, "Line throughput in units per hour")
	flag.DurationVar(&opts.Changeover, "changeover", 20*time.Minute, "Changeover time between batches")
	flag.IntVar(&opts.UrgentThreshold, "urgent-threshold", 0, "Orders with priority above this are urgent")

	// Parse flags
	flag.Parse()

	// Validate mode
	switch opts.Mode {
	case "all", "dashboard", "worker", "flight":
		// Valid modes
	default:
		fmt.Printf("Invalid mode: %s\n", opts.Mode)
		flag.Usage()
		os.Exit(1)
	}

	return opts
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
