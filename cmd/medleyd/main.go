// Command medleyd runs the media processing daemon: the workflow manager,
// the notification resolver, and the HTTP API.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"medley/internal/config"
	"medley/internal/daemon"
	"medley/internal/logging"
)

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger.Info("configuration loaded", logging.String("path", path))

	st, err := buildStack(ctx, cfg, logger)
	if err != nil {
		logger.Error("build daemon stack", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, st.store, st.content, st.manager, st.resolver, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = st.store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("medleyd shutting down")
}
