// HanLens - on-screen Chinese reader: captures a screen region, recognizes
// the text, and overlays dictionary lookups on top of it
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	"github.com/hanlens/hanlens/internal/capture"
	"github.com/hanlens/hanlens/internal/config"
	"github.com/hanlens/hanlens/internal/dict"
	"github.com/hanlens/hanlens/internal/ocr"
	"github.com/hanlens/hanlens/internal/pipeline"
	"github.com/hanlens/hanlens/internal/server"
	"github.com/hanlens/hanlens/internal/ui"
)

const fyneAppID = "io.hanlens.app"

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	cfgPath := config.DefaultPath
	if v := os.Getenv("HANLENS_CONFIG"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	// The app is useless without its dictionary
	dictionary, err := dict.Load(cfg.DictPath, script(cfg.Language))
	if err != nil {
		slog.Error("failed to load dictionary", "path", cfg.DictPath, "error", err)
		os.Exit(1)
	}

	engine, err := ocr.NewEngine(ocr.Options{
		Lang:           cfg.Language.TessLang(),
		TessdataPrefix: cfg.TessdataPrefix,
	})
	if err != nil {
		slog.Error("failed to start ocr engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	pl := pipeline.New(capture.New(), engine, dictionary, cfg)

	// The overlay and its font measurer must exist before the loop starts;
	// SetMeasurer is not safe once passes are running.
	a := fyneapp.NewWithID(fyneAppID)
	overlayUI, err := ui.New(a, pl, cfg)
	if err != nil {
		slog.Error("failed to build overlay", "error", err)
		os.Exit(1)
	}
	pl.SetMeasurer(ui.Measurer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plDone := make(chan struct{})
	go func() {
		defer close(plDone)
		if err := pl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pipeline error", "error", err)
		}
	}()

	// Local feed server, off unless configured on
	var httpServer *http.Server
	if cfg.ServerEnabled {
		srv := server.New(pl)
		httpServer = &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      srv.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("feed server starting", "addr", cfg.ServerAddr)
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("signal received")
		fyne.Do(a.Quit)
	}()

	slog.Info("hanlens started",
		"language", string(cfg.Language),
		"region", cfg.Region.String(),
		"entries", dictionary.Len(),
	)

	// Blocks until the overlay window closes
	overlayUI.Run()

	slog.Info("shutting down...")
	cancel()
	pl.Stop()

	select {
	case <-plDone:
	case <-time.After(server.ShutdownTimeout):
		slog.Warn("pipeline did not stop in time")
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
		}
	}

	slog.Info("shutdown complete")
}

func script(v config.Variant) dict.Script {
	if v.Traditional() {
		return dict.Traditional
	}
	return dict.Simplified
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("HANLENS_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
