package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/stability.report/internal/api"
	"github.com/banshee-data/stability.report/internal/config"
	"github.com/banshee-data/stability.report/internal/db"
	"github.com/banshee-data/stability.report/internal/monitoring"
	"github.com/banshee-data/stability.report/internal/pipeline"
	"github.com/banshee-data/stability.report/internal/stabilize"
	storage "github.com/banshee-data/stability.report/internal/storage/sqlite"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "stabilizer_data.db", "SQLite database file")
	configPath = flag.String("config", config.DefaultConfigPath, "Tuning config JSON file")
	devMode    = flag.Bool("dev", false, "Run in dev mode (replay fixtures instead of live ingest only)")
	fixtures   = flag.String("fixtures", "fixtures.jsonl", "JSONL detection fixtures for dev mode replay")
	replayRate = flag.Duration("replay-interval", 100*time.Millisecond, "Frame interval for fixture replay")
	debugLog   = flag.Bool("debug", false, "Enable per-frame debug logging")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*debugLog)

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	stab, err := stabilize.NewStabilizer(tuning.StabilizationConfig(),
		stabilize.WithMatcher(tuning.BuildMatcher()))
	if err != nil {
		log.Fatalf("failed to construct stabilizer: %v", err)
	}
	if !tuning.GetStartEnabled() {
		stab.Disable()
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	store := storage.NewStore(database.DB)
	runID, err := store.CreateRun(stab.Config(), time.Now().UnixNano())
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}
	monitoring.Logf("stabilization run %s started", runID)

	mux := http.NewServeMux()
	api.NewServer(stab, store, tuning).RegisterRoutes(mux)
	database.AttachAdminRoutes(mux)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *devMode {
		src, err := pipeline.OpenReplayFile(*fixtures, *replayRate)
		if err != nil {
			log.Fatalf("failed to open fixtures: %v", err)
		}
		rt := pipeline.NewRuntime(stab, src, []pipeline.Sink{pipeline.LogSink()},
			pipeline.WithPersistence(store, runID, tuning.GetStatsSnapshotInterval()))
		go func() {
			if err := rt.Run(ctx); err != nil {
				monitoring.Logf("replay pipeline stopped: %v", err)
			} else {
				monitoring.Logf("replay pipeline finished")
			}
		}()
	}

	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("server shutdown: %v", err)
		}
	}()

	monitoring.Logf("listening on %s", *listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}

	// Final stats snapshot for every source seen this run.
	for _, sourceID := range stab.Sources() {
		if err := store.InsertStatsSnapshot(runID, stab.Stats(sourceID), time.Now().UnixNano()); err != nil {
			monitoring.Logf("final stats snapshot for %s failed: %v", sourceID, err)
		}
	}
}
