package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apexgov/core/pkg/audit"
	"github.com/apexgov/core/pkg/server"
)

// runServeCmd runs the HTTP judgment API until interrupted, sweeping
// cooling windows in the background.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	addr := cmd.String("addr", "", "listen address (overrides config)")
	sweepEvery := cmd.Duration("sweep", time.Minute, "cooling sweep interval")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	defer k.close()

	srv, err := server.New(k.engine, k.ledger,
		server.WithCooling(k.cooling),
		server.WithRateLimit(k.cfg.Server.RateLimitRPS, k.cfg.Server.RateLimitBurst),
		server.WithLogger(k.logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}

	listenAddr := k.cfg.Server.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP re-reads the constitution: the amendment is appended to the
	// verdict ledger, then the rebuilt engine is swapped in.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				engine, err := k.reload(ctx)
				if err != nil {
					k.logger.Error("constitution reload failed", "error", err)
					continue
				}
				srv.SetEngine(engine)
				k.logger.Info("constitution reloaded", "hash", k.mgr.Hash())
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(*sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if changed, err := k.cooling.Sweep(ctx); err != nil {
					k.logger.Warn("cooling sweep failed", "error", err)
				} else if len(changed) > 0 {
					k.logger.Info("cooling sweep", "transitioned", len(changed))
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	k.logger.Info("kernel serving", "addr", listenAddr, "mode", k.cfg.Mode)
	_ = k.audit.Record(ctx, audit.EventSystem, "", "kernel.start", listenAddr, nil)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return 0
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
}

// runStdioCmd judges line-delimited JSON requests from stdin.
func runStdioCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("stdio", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "constitution YAML path (optional)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	k, err := buildKernel(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "stdio: %v\n", err)
		return 1
	}
	defer k.close()

	srv, err := server.New(k.engine, k.ledger,
		server.WithCooling(k.cooling),
		server.WithLogger(k.logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "stdio: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ServeStdio(ctx, os.Stdin, stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "stdio: %v\n", err)
		return 1
	}
	return 0
}
