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

	"go.uber.org/zap"

	"github.com/ytget/mediaqueue/internal/api"
	"github.com/ytget/mediaqueue/internal/capability"
	"github.com/ytget/mediaqueue/internal/config"
	"github.com/ytget/mediaqueue/internal/convert"
	"github.com/ytget/mediaqueue/internal/download"
	"github.com/ytget/mediaqueue/internal/gateway"
	"github.com/ytget/mediaqueue/internal/history"
	"github.com/ytget/mediaqueue/internal/model"
	"github.com/ytget/mediaqueue/internal/platform"
	"github.com/ytget/mediaqueue/internal/scheduler"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML configuration file")
	envFile := flag.String("env-file", ".env", "Path to a dotenv file")
	flag.Parse()

	settings, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(settings.Log.Level, settings.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(settings, logger); err != nil {
		logger.Error("mediaqueue stopped with an error", zap.Error(err))
		os.Exit(1)
	}
}

func run(settings *config.Settings, logger *zap.Logger) error {
	logger.Info("mediaqueue starting", zap.String("version", version), zap.String("addr", settings.Server.Addr))

	if err := platform.CreateDirectoryIfNotExists(settings.Downloads.Dir); err != nil {
		return fmt.Errorf("ensure downloads dir: %w", err)
	}

	hist, closeHistory, err := openHistory(settings, logger)
	if err != nil {
		return err
	}
	defer closeHistory()

	caps := capability.NewCache(settings.Tools.FFmpeg, logger, capability.WithTimeout(settings.Tools.ProbeTimeout))
	// Probe in the background so the first conversion does not wait for it
	go caps.Get()

	tools := gateway.Router{
		model.KindDownload:   download.NewTool(settings.Tools.YtDlp, logger),
		model.KindConversion: convert.NewTool(settings.Tools.FFmpeg, settings.Tools.FFprobe, caps, logger),
	}

	live := config.NewLive(settings)
	sched := scheduler.New(scheduler.Deps{
		Tool:        tools,
		History:     hist.sink,
		MaxParallel: live.MaxParallel,
		SinkDir:     settings.Downloads.SinkDir,
		Logger:      logger,
		Defaults: scheduler.Defaults{
			OutputDir:        settings.Downloads.Dir,
			Quality:          settings.Downloads.Quality,
			FilenameTemplate: settings.Downloads.FilenameTemplate,
			AudioFormat:      settings.Downloads.AudioFormat,
			VideoContainer:   settings.Downloads.VideoContainer,
		},
	})

	handler := api.NewTaskHandler(sched, platform.NewPlaylistLister(settings.Tools.PlaylistTimeout), hist.lister, live, logger)
	server := &http.Server{
		Addr:    settings.Server.Addr,
		Handler: api.NewRouter(handler),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn("running tasks did not stop in time", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
	return nil
}

type historyBackends struct {
	sink   history.Sink
	lister history.Lister
}

// openHistory opens the history file and, when configured, mirrors records to Redis.
// The file stays the source for listing.
func openHistory(settings *config.Settings, logger *zap.Logger) (historyBackends, func(), error) {
	file, err := history.NewFileStore(settings.History.File, settings.History.MaxEntries, logger)
	if err != nil {
		return historyBackends{}, nil, fmt.Errorf("open history: %w", err)
	}
	backends := historyBackends{sink: file, lister: file}

	if settings.History.RedisAddr == "" {
		return backends, func() {}, nil
	}

	redisSink, err := history.ConnectRedis(settings.History.RedisAddr, settings.History.RedisPassword,
		settings.History.RedisDB, settings.History.RedisKey, settings.History.MaxEntries, logger)
	if err != nil {
		logger.Warn("redis history disabled", zap.String("addr", settings.History.RedisAddr), zap.Error(err))
		return backends, func() {}, nil
	}
	backends.sink = history.Fanout{file, redisSink}

	return backends, func() {
		if err := redisSink.Close(); err != nil {
			logger.Warn("failed to close redis history", zap.Error(err))
		}
	}, nil
}
