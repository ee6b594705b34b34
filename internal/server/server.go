// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package server implements keydb's listener and shutdown coordinator:
// an accept loop bounded by an admission semaphore, one goroutine per
// connection, and a broadcast-close shutdown signal paired with a
// sync.WaitGroup standing in for the self-counting shutdown-complete
// channel (closing a channel IS Go's native broadcast primitive;
// WaitGroup IS Go's native self-counting-completion primitive — no
// hand-rolled channel bookkeeping is needed to get the same guarantee).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/nishisan-dev/keydb/internal/command"
	"github.com/nishisan-dev/keydb/internal/config"
	"github.com/nishisan-dev/keydb/internal/connection"
	"github.com/nishisan-dev/keydb/internal/events"
	"github.com/nishisan-dev/keydb/internal/protocol"
	"github.com/nishisan-dev/keydb/internal/store"
)

// Listener accepts TCP connections and dispatches RESP commands against
// a shared storage engine until shut down.
type Listener struct {
	cfg        *config.Config
	engine     store.Engine
	logger     *slog.Logger
	eventStore *events.Store

	ln           net.Listener
	sem          chan struct{} // admission semaphore: buffered chan used as a counting semaphore
	shutdownCh   chan struct{} // closed once: the broadcast signal every worker selects on
	shutdownOnce sync.Once
	wg           sync.WaitGroup // self-counting drain-completion signal
}

// New constructs a Listener. Call Run to serve.
func New(cfg *config.Config, engine store.Engine, logger *slog.Logger, eventStore *events.Store) *Listener {
	return &Listener{
		cfg:        cfg,
		engine:     engine,
		logger:     logger,
		eventStore: eventStore,
		sem:        make(chan struct{}, cfg.Server.MaxConnections),
		shutdownCh: make(chan struct{}),
	}
}

// Run serves ln until ctx is cancelled, then drains in-flight
// connections and the diagnostics reporter before returning.
func (l *Listener) Run(ctx context.Context, ln net.Listener) error {
	l.ln = ln
	l.logger.Info("server listening", "address", ln.Addr().String(), "backend", l.cfg.Server.Backend)
	l.pushEvent("info", "backend_selected", l.cfg.Server.Backend)

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.serve() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		l.logger.Info("shutting down server")
	}

	l.shutdownOnce.Do(func() { close(l.shutdownCh) })
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		l.logger.Error("closing listener", "error", err)
	}
	<-serveErr // wait for the accept loop and every worker to drain

	l.engine.ShutdownPurgeTask()
	l.logger.Info("server shutdown complete")
	return nil
}

// ConnectionsInUse reports how many admission-semaphore permits are
// currently held, for the diagnostics reporter.
func (l *Listener) ConnectionsInUse() int {
	return len(l.sem)
}

func (l *Listener) serve() error {
	diag := &diagnostics{
		logger:           l.logger,
		engine:           l.engine,
		events:           l.eventStore,
		connectionsInUse: l.ConnectionsInUse,
		interval:         l.cfg.Diagnostics.Interval,
		schedule:         l.cfg.Diagnostics.Schedule,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		diag.run(l.shutdownCh)
	}()

	consecutiveErrors := 0
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.shutdownCh:
				l.wg.Wait()
				return nil
			default:
			}
			consecutiveErrors++
			l.logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
			delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
			time.Sleep(delay)
			continue
		}
		consecutiveErrors = 0

		select {
		case l.sem <- struct{}{}:
		case <-l.shutdownCh:
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

func (l *Listener) pushEvent(level, eventType, message string) {
	if l.eventStore == nil {
		return
	}
	l.eventStore.Push(events.EventEntry{Level: level, Type: eventType, Message: message})
}

type readResult struct {
	frame *protocol.Frame
	err   error
}

// handleConnection owns one accepted socket for its lifetime: it reads
// frames until the peer disconnects, a protocol error occurs, or
// shutdown fires, applying exactly one command per frame. Each read is
// issued on its own goroutine and raced against the shutdown signal via
// select, since a blocking net.Conn.Read cannot otherwise be cancelled.
func (l *Listener) handleConnection(netConn net.Conn) {
	defer l.wg.Done()
	defer func() { <-l.sem }()
	defer netConn.Close()

	remote := netConn.RemoteAddr().String()
	conn := connection.New(netConn)

	if l.cfg.Store.MaxBytesPerSec > 0 {
		throttleCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-l.shutdownCh:
				cancel()
			case <-throttleCtx.Done():
			}
		}()
		conn.SetWriteLimiter(connection.NewThrottledWriter(throttleCtx, conn.Writer(), l.cfg.Store.MaxBytesPerSec))
	}

	l.pushEvent("info", "connection_accepted", remote)

	for {
		resultCh := make(chan readResult, 1)
		go func() {
			f, err := conn.ReadFrame()
			resultCh <- readResult{f, err}
		}()

		var res readResult
		select {
		case res = <-resultCh:
		case <-l.shutdownCh:
			return
		}

		if res.err != nil {
			l.logger.Debug("connection closed on error", "remote", remote, "error", res.err)
			l.pushEvent("warn", "protocol_error", fmt.Sprintf("%s: %v", remote, res.err))
			return
		}
		if res.frame == nil {
			l.pushEvent("info", "connection_closed", remote)
			return
		}

		cmd, err := command.FromFrame(*res.frame)
		if err != nil {
			// A malformed frame (bad arity, wrong type, short command) is a
			// protocol violation, not an application error: there is no
			// well-formed request to reply to, so the connection is closed
			// with no reply rather than echoing an error frame back.
			l.logger.Debug("connection closed on protocol error", "remote", remote, "error", err)
			l.pushEvent("warn", "protocol_error", fmt.Sprintf("%s: %v", remote, err))
			return
		}

		reply := command.Apply(l.engine, cmd)
		if err := conn.WriteFrame(reply); err != nil {
			l.logger.Debug("writing reply", "remote", remote, "error", err)
			return
		}
	}
}
