// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nishisan-dev/keydb/internal/config"
	"github.com/nishisan-dev/keydb/internal/events"
	"github.com/nishisan-dev/keydb/internal/logging"
	"github.com/nishisan-dev/keydb/internal/server"
	"github.com/nishisan-dev/keydb/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/keydb/keydb.yaml", "path to server config file")
	backendOverride := flag.String("backend", "", "override server.backend (mini-redis|simple-store)")
	debug := flag.Bool("debug", false, "override logging.level to debug")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backendOverride != "" {
		cfg.Server.Backend = *backendOverride
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	evStore, err := events.NewStore(cfg.Diagnostics.EventsFile, 0, 0)
	if err != nil {
		logger.Error("creating event store", "error", err)
		os.Exit(1)
	}
	defer evStore.Close()

	engine, err := store.New(store.Config{
		Backend:             cfg.Server.Backend,
		DefaultTTL:          cfg.DefaultTTL(),
		LogPath:             cfg.Store.LogPath,
		CompressValuesAbove: cfg.Store.CompressValuesAbove,
	})
	if err != nil {
		logger.Error("initializing storage engine", "error", err, "backend", cfg.Server.Backend)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		logger.Error("binding listener", "error", err, "address", cfg.Server.Listen)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	l := server.New(cfg, engine, logger, evStore)
	if err := l.Run(ctx, ln); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
