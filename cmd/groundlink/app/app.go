package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/groundlink/internal/engine"
	"github.com/roman-kulish/groundlink/internal/events"
	"github.com/roman-kulish/groundlink/internal/link"
	"github.com/roman-kulish/groundlink/internal/relay"
	"github.com/roman-kulish/groundlink/internal/storage"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Run connects to the vehicle and streams its telemetry to the configured
// consumers until ctx is cancelled
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	emitter := events.NewEmitter(events.WithLogger(logger), events.WithBacklog(config.Engine.Backlog))
	orchestrator := NewOrchestrator(emitter, logger)

	tracker := telemetry.NewTracker()
	if err := orchestrator.AddConsumer("tracker", tracker); err != nil {
		return err
	}
	if err := orchestrator.AddConsumer("console", NewConsole(logger)); err != nil {
		return err
	}

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("closing storage", slog.Any("error", err))
			}
		}()

		archive, err := NewArchive(ctx, store, config.Link.Endpoint, config, logger)
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		if err = orchestrator.AddConsumer("archive", archive); err != nil {
			return err
		}
	}

	if config.Relay.Enabled {
		hub := relay.NewHub(relay.WithLogger(logger), relay.WithState(tracker))
		if err := orchestrator.AddConsumer("relay", hub); err != nil {
			return err
		}

		relayCtx, cancelRelay := context.WithCancel(context.Background())
		defer cancelRelay()
		go hub.Run(relayCtx)

		server := &http.Server{
			Addr:              config.Relay.Address,
			Handler:           newRouter(hub, tracker),
			ReadHeaderTimeout: shutdownTimeout,
		}
		go func() {
			logger.Info("relay listening", slog.String("address", config.Relay.Address))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("relay server failed", slog.Any("error", err))
			}
		}()
		defer shutdownServer(server, logger)
	}

	dialer := link.NewDialer(config.Link, link.WithLogger(logger))
	options := append(config.Engine.Options(), engine.WithLogger(logger))
	eng := engine.New(dialer, config.Link.Target, emitter, options...)

	return orchestrator.Run(ctx, eng)
}

func newRouter(hub http.Handler, provider telemetry.Provider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/api/telemetry", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(provider.Get()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return mux
}

func shutdownServer(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutting down relay server", slog.Any("error", err))
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dbPath := config.DataDirectory
	if !filepath.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, dbPath)
	}

	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dbPath, err)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("groundlink_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
