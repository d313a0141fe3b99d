// Command migrate applies the orders schema to the configured database, or
// prints it with -print.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"isawan/internal/config"
	"isawan/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	printOnly := flag.Bool("print", false, "print the schema instead of applying it")
	timeout := flag.Duration("timeout", 30*time.Second, "time allowed for connecting and migrating")
	flag.Parse()

	if *printOnly {
		fmt.Print(database.Schema())
		return nil
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.MinConnections = 1

	logger := config.NewLogger(config.LoggerConfig{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: "console",
	}, "isawan-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	var dbName string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		return fmt.Errorf("failed to query current database: %w", err)
	}
	logger.Info().Str("database", dbName).Msg("connected")

	return database.Migrate(ctx, pool, logger)
}
