package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lugatuic/passwd-webui/config"
	"github.com/lugatuic/passwd-webui/directory"
	"github.com/lugatuic/passwd-webui/internal/httpserver"
	"github.com/lugatuic/passwd-webui/profile"
	"github.com/lugatuic/passwd-webui/web"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CONF_FILE"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger, lerr := newLogger(cfg.Debug)
	if lerr != nil {
		panic("failed to initialize logger: " + lerr.Error())
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", err)
		}
	}()

	logger.Info("Starting passwd-webui", zap.String("version", version))

	client, err := directory.NewClient(&cfg.LDAP, logger)
	if err != nil {
		logger.Fatal("directory client init failed", zap.Error(err))
	}
	logger.Info("ldap.configured", zap.String("url", client.URL()), zap.String("base", client.BaseDN()))

	renderer, err := web.NewRenderer(cfg.HTML)
	if err != nil {
		logger.Fatal("templates failed to load", zap.Error(err))
	}

	svc := profile.NewService(client, logger)
	handler := httpserver.New(logger, svc, renderer, web.Static()).Handler()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http.listen", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown.signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown.error", zap.Error(err))
		} else {
			logger.Info("shutdown.complete")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http.server.failed", zap.Error(err))
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
