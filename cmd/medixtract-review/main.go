// Package main is the entry point for the MediXtract review tool: it loads
// configuration, opens the schema document set and dispatches subcommands.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/medixtract-review/internal/cli"
	"github.com/medixtract-review/internal/config"
	"github.com/medixtract-review/internal/journal"
	"github.com/medixtract-review/internal/session"
)

func main() {
	manager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := manager.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	cfg := manager.GetConfig()
	logger := manager.NewLogger()

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
	}

	s, err := session.New(session.Options{
		SchemaDir: cfg.SchemaDir,
		CacheSize: cfg.Cache.SummaryEntries,
		Journal:   j,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	if err := s.Load(); err != nil {
		log.Fatalf("Failed to load schema versions from %s: %v", cfg.SchemaDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	c := cli.New(s, j, cfg.SchemaDir, logger)
	if err := c.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}
