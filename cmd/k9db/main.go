// Package main is k9db's thin process entrypoint: load configuration,
// open an Engine, and block until told to shut down. What a client calls —
// table and view creation on *engine.Engine, and INSERT/DELETE/UPDATE/
// SELECT/GDPR GET/FORGET on a session's *engine.Executor — is plain Go
// methods; there are no SQL-string ExecDDL/ExecUpdate/ExecSelect methods.
// The wire protocol
// that would sit in front of it is an explicit Non-goal, so this binary
// has nothing to listen on. Adapted from the teacher's
// cmd/coordinator/main.go signal-handling shutdown sequence with the HTTP
// server, node registration, and broadcast endpoints removed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/k9db/internal/config"
	"github.com/dreamware/k9db/internal/engine"
)

// applyFlags overrides cfg's loaded values with any flags the caller set
// explicitly, leaving config.Load's file/env/default precedence alone for
// everything else. -consistent always applies since flag.Bool has no
// "unset" state to distinguish from an explicit false.
func applyFlags(cfg *config.Config, workers int, dbName, dataDir string, consistent bool) {
	if workers > 0 {
		cfg.Workers = workers
	}
	if dbName != "" {
		cfg.DBName = dbName
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Consistent = consistent
}

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("k9db: fatal")
		os.Exit(1)
	}
}

func run() error {
	var (
		workers    = flag.Int("workers", 0, "dataflow partition count (0 uses config/env default)")
		dbName     = flag.String("db-name", "", "database namespace (overrides K9DB_DB_NAME)")
		dataDir    = flag.String("data-dir", "", "on-disk data directory (overrides K9DB_DATA_DIR)")
		consistent = flag.Bool("consistent", true, "require full-barrier Future.Wait consistency by default")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("k9db: load config: %w", err)
	}
	applyFlags(cfg, *workers, *dbName, *dataDir, *consistent)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("k9db: validate config: %w", err)
	}

	e, err := engine.Open(cfg)
	if err != nil {
		return fmt.Errorf("k9db: open engine: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"db_name": cfg.DBName, "workers": cfg.Workers, "consistent": cfg.Consistent,
	}).Info("k9db: engine ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Info("k9db: shutdown signal received, draining dataflow workers")
	if err := e.Shutdown(); err != nil {
		return fmt.Errorf("k9db: shutdown: %w", err)
	}
	return nil
}
