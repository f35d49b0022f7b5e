package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"worldrenew/internal/persistence/journal"
	persistlog "worldrenew/internal/persistence/log"
	"worldrenew/internal/renewal"
	"worldrenew/internal/transport/status"
	"worldrenew/internal/transport/ws"
	"worldrenew/internal/tuning"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite scan/decision journal")
		enablePprof = flag.Bool("pprof", false, "expose /debug/pprof")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[renewd] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	engine, err := renewal.NewEngine(renewal.EngineConfig{
		TickRateHz: tune.TickRateHz,
		Projection: renewal.Config{
			WorksetBudget:       tune.WorksetBudget,
			PropagationRadius:   tune.PropagationRadius,
			LivelinessThreshold: tune.LivelinessThreshold,
			ChunkBatchCap:       tune.ChunkBatchCap,
		},
	}, logger)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	// Durable records: sqlite journal (facts + decisions) and a compressed
	// JSONL stabilization log. Both optional; the engine is memory-only.
	if !*disableDB {
		jnl, err := journal.Open(filepath.Join(*dataDir, "journal", "renewal.db"))
		if err != nil {
			logger.Fatalf("open journal: %v", err)
		}
		defer jnl.Close()
		engine.Gate().SetFactLogger(jnl)
		engine.Projection().RegisterStableListener(jnl)
	}
	stab := persistlog.NewStabilizationLogger(*dataDir)
	defer stab.Close()
	engine.Projection().RegisterStableListener(stab)

	engine.Projection().RegisterStableListener(renewal.StableListenerFunc(func(snap *renewal.StableSnapshot) {
		kind := "NONE"
		if snap.Decision != nil {
			if snap.Decision.Kind == renewal.DecisionRegion {
				kind = "REGION"
			} else {
				kind = "CHUNK_BATCH"
			}
		}
		logger.Printf("stabilization pass %d: tracked=%d decision=%s", snap.Pass, len(snap.Metrics), kind)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine loop: %v", err)
		}
	}()

	ingest := ws.NewServer(engine.Facts(), logger)
	api := status.NewServer(engine.WorldMap(), engine.Projection(), tune.MissingPageSize, logger)

	r := chi.NewRouter()
	r.Mount("/v1", api.Routes())
	r.Get("/v1/ws", ingest.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if *enablePprof {
		r.HandleFunc("/debug/pprof/*", pprof.Index)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	}

	srv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	engine.Stop()
	cancel()
}
