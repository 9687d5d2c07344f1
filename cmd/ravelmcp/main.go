// Command ravelmcp is the work-item orchestration server: it loads
// configuration and the note schema, opens the database, and serves
// the 13-tool registry over stdio or HTTP (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ravelhq/ravel/internal/config"
	"github.com/ravelhq/ravel/internal/diag"
	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/server"
	"github.com/ravelhq/ravel/internal/store/sqlite"
	"github.com/ravelhq/ravel/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ravelmcp:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	providers, err := telemetry.Setup(cfg.Debug)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer providers.Shutdown(ctx)

	schema, err := noteschema.Load(cfg.NoteSchemaPath)
	if err != nil {
		return fmt.Errorf("loading note schema: %w", err)
	}
	watcher := noteschema.WatchForDrift(cfg.NoteSchemaPath)
	defer watcher.Close()

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.DatabasePath, err)
	}
	defer st.Close()

	metrics, err := telemetry.NewWorkflowMetrics()
	if err != nil {
		diag.Logf("telemetry: workflow metrics unavailable: %v", err)
	}

	srv := server.New(st, schema, metrics, 1)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case config.TransportHTTP:
		addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
		go func() {
			<-sigCtx.Done()
			os.Exit(0)
		}()
		return srv.ListenAndServeHTTP(addr)
	default:
		diag.PrintNormal("ravel: serving stdio transport (server=%s)", cfg.ServerName)
		return srv.ServeStdio(sigCtx, os.Stdin, os.Stdout)
	}
}
