package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mugen-ai/mugen/internal/agent"
	"github.com/mugen-ai/mugen/internal/reasoning"
	"github.com/mugen-ai/mugen/pkg/coord"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Exit with appropriate code
	os.Exit(run())
}

// run contains the main logic and returns an exit code.
// This separation makes the logic testable and ensures deferred functions run.
func run() int {
	// Load configuration from environment variables
	config, err := agent.LoadConfig()
	if err != nil {
		log.Printf("[ERROR] Configuration error: %v", err)
		return 1
	}

	log.Printf("[INFO] Agent starting: id='%s' role='%s' instance='%s'",
		config.AgentID, config.Role, config.InstanceName)

	ctx := context.Background()

	// Parse Redis URL
	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		log.Printf("[ERROR] Invalid REDIS_URL: %v", err)
		return 1
	}

	// Create coordination client
	coordClient, err := coord.NewClient(redisOpts, config.InstanceName)
	if err != nil {
		log.Printf("[ERROR] Failed to create coordination client: %v", err)
		return 1
	}
	defer func() {
		log.Printf("[DEBUG] Closing coordination client...")
		if err := coordClient.Close(); err != nil {
			log.Printf("[ERROR] Error closing coordination client: %v", err)
		}
	}()

	// Verify Redis connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := coordClient.Ping(pingCtx); err != nil {
		cancel()
		log.Printf("[ERROR] Failed to connect to Redis: %v", err)
		return 1
	}
	cancel()
	log.Printf("[INFO] Connected to Redis")

	// Resolve the role implementation (built-in or custom from env)
	role, err := agent.ResolveRole(config)
	if err != nil {
		log.Printf("[ERROR] Role error: %v", err)
		return 1
	}

	// Select the reasoning backend
	var reasoner reasoning.Client
	switch config.Reasoner {
	case "mock":
		reasoner = reasoning.NewMockClient()
	default:
		reasoner = reasoning.NewCLIClient(config.ReasoningModel, config.ReasoningTimeout)
	}

	// Create engine
	engine := agent.New(config, coordClient, reasoner, role)

	// Set up context for graceful shutdown
	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	// Set up signal handling for SIGINT and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start engine in background goroutine
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(engineCtx)
	}()

	// Wait for shutdown signal or engine exit
	select {
	case sig := <-sigChan:
		log.Printf("[INFO] Received signal: %v", sig)
	case err := <-engineDone:
		if err != nil {
			log.Printf("[ERROR] Engine error: %v", err)
			return 1
		}
		// Normal exit: the engine saw a shutdown message
		log.Printf("[INFO] Agent shutdown complete")
		return 0
	}

	// Graceful shutdown sequence

	// 1. Cancel engine context to signal goroutines to stop
	log.Printf("[INFO] Initiating graceful shutdown...")
	engineCancel()

	// 2. Wait for engine to finish its current work (with timeout)
	engineShutdownTimer := time.NewTimer(5 * time.Second)
	defer engineShutdownTimer.Stop()

	select {
	case err := <-engineDone:
		if err != nil {
			log.Printf("[ERROR] Engine shutdown error: %v", err)
			return 1
		}
		log.Printf("[INFO] Engine shutdown complete")

	case <-engineShutdownTimer.C:
		log.Printf("[ERROR] Engine shutdown timeout - forcing exit")
		return 1
	}

	// 3. Redis client closed via defer

	log.Printf("[INFO] Agent shutdown complete")
	return 0
}
