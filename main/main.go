package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cheatReport "github.com/r4g3baby/cheat-report"
	"github.com/r4g3baby/cheat-report/config"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("error loading .env file: %v", err)
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	logger := config.NewLogger(*cfg)
	defer func() { _ = logger.Sync() }()

	app, err := cheatReport.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalw("failed to initialize",
			"error", err,
		)
	}

	if err := app.Start(); err != nil {
		logger.Fatalw("failed to start",
			"error", err,
		)
	}
	defer app.Shutdown()

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, os.Interrupt)
	sig := <-shutdownSignal

	logger.Debugw("received shutdown signal",
		"signal", sig,
	)
}

func configPath() string {
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return "config.json"
}
