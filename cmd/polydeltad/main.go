// polydeltad is the odds pricing daemon. It scans a bookmaker feed and a
// prediction-market feed, joins the two on canonical team identity, strips
// the bookmaker vig, and emits value signals where the market underprices
// the book-fair probability.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polydelta/polydelta/pkg/config"
	"github.com/polydelta/polydelta/pkg/ev"
	"github.com/polydelta/polydelta/pkg/feed"
	"github.com/polydelta/polydelta/pkg/history"
	"github.com/polydelta/polydelta/pkg/identity"
	"github.com/polydelta/polydelta/pkg/metrics"
	"github.com/polydelta/polydelta/pkg/odds"
	"github.com/polydelta/polydelta/pkg/pairing"
	"github.com/polydelta/polydelta/pkg/pipeline"
	"github.com/polydelta/polydelta/pkg/streaming"
	"github.com/polydelta/polydelta/pkg/trigger"
)

var (
	// Flags
	configPath = flag.String("config", "", "Path to YAML config file")
	httpAddr   = flag.String("http", "", "HTTP server address (overrides config)")
	scanEvery  = flag.Duration("scan", 0, "Scan interval (overrides config)")
	once       = flag.Bool("once", false, "Run a single scan cycle and exit")
	verbose    = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting PolyDelta pricing daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *scanEvery > 0 {
		cfg.ScanInterval = config.Duration(*scanEvery)
	}

	d, err := newDaemon(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *once {
		report, err := d.engine.RunCycle(ctx)
		if err != nil {
			log.Fatalf("Cycle failed: %v", err)
		}
		json.NewEncoder(os.Stdout).Encode(report)
		return
	}

	go d.startHTTP(cfg.HTTPAddr)

	go func() {
		if err := d.engine.Run(ctx, cfg.ScanInterval.Std()); err != nil && ctx.Err() == nil {
			log.Printf("[ENGINE] stopped: %v", err)
		}
	}()

	log.Printf("Daemon running (scan=%s, http=%s)", cfg.ScanInterval.Std(), cfg.HTTPAddr)
	log.Printf("WebSocket streaming available at ws://%s/ws", cfg.HTTPAddr)
	log.Println("Press Ctrl+C to stop")

	<-sigCh
	log.Println("Shutting down...")
	cancel()

	if report := d.engine.LastReport(); report != nil {
		log.Printf("Final cycle: pairs=%d signals=%d orphans=%d/%d unresolved=%d",
			report.Pairs, len(report.Signals),
			report.BookOrphans, report.MarketOrphans, len(report.Unresolved))
	}
	log.Println("Goodbye!")
}

type daemon struct {
	engine    *pipeline.Engine
	metrics   *metrics.EngineMetrics
	streamHub *streaming.Hub
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{
		metrics:   metrics.NewEngineMetrics(),
		streamHub: streaming.NewHub(),
	}
	go d.streamHub.Run()

	// An invalid identity table is startup-fatal: resolving against it
	// risks merging distinct teams.
	table, err := identity.LoadTable(cfg.TeamsFile)
	if err != nil {
		return nil, fmt.Errorf("loading identity table: %w", err)
	}
	log.Printf("Identity table loaded: %d entities", table.EntityCount())

	if cfg.Book.APIKey == "" {
		log.Println("Warning: no odds API key configured (ODDS_API_KEY)")
	}
	bookFeed := feed.NewBookClient(cfg.Book.APIKey,
		feed.WithBookSport(cfg.Book.Sport),
		feed.WithBookOutrights(cfg.Book.OutrightSport),
	)
	marketFeed := feed.NewMarketClient(
		feed.WithMarketTag(cfg.Market.Tag),
		feed.WithMarketOutrightTag(cfg.Market.OutrightTag),
		feed.WithMarketFutures(cfg.Market.Futures),
	)

	d.engine = pipeline.NewEngine(table, bookFeed, marketFeed, engineConfig(cfg), d.metrics)

	d.engine.OnSignal(func(s pipeline.Signal) {
		log.Printf("[SIGNAL] %s vs %s: %s %s @ %.4f (EV: %.0f bps, %s)",
			s.Home, s.Away, s.Outcome, s.Team,
			s.Result.MarketPrice.InexactFloat64(),
			s.Result.EVBps.InexactFloat64(),
			s.Class)
		d.streamHub.BroadcastSignal(s)
	})

	d.engine.OnPair(func(p pairing.MatchedPair) {
		if *verbose {
			log.Printf("[PAIR] %s vs %s <-> %s", p.Book.Home, p.Book.Away, p.Market.ID)
		}
		d.streamHub.BroadcastPair(p)
	})

	d.engine.OnPriceChange(func(key string, snap history.Snapshot) {
		d.streamHub.BroadcastPrice(key, snap.MarketPrice)
	})

	d.engine.OnCycle(func(r *pipeline.Report) {
		d.streamHub.BroadcastCycle(r)
	})

	d.engine.OnOrphan(func(feedName string, fixture interface{}) {
		if *verbose {
			log.Printf("[ORPHAN] %s feed: %+v", feedName, fixture)
		}
		d.streamHub.BroadcastOrphan(feedName, fixture)
	})

	d.engine.OnError(func(err error) {
		log.Printf("[ERROR] %v", err)
		d.streamHub.BroadcastError(err, "engine")
	})

	return d, nil
}

// engineConfig translates file config into per-component configs, leaving
// zero values to each component's defaults.
func engineConfig(cfg *config.Config) *pipeline.EngineConfig {
	return &pipeline.EngineConfig{
		Resolver: &identity.ResolverConfig{
			Threshold: cfg.Identity.Threshold,
		},
		DeVig: &odds.DeVigConfig{
			PreferredBookmakers: cfg.DeVig.PreferredBookmakers,
			MaxOutrightProb:     cfg.DeVig.MaxOutrightProb,
		},
		EV: &ev.Config{
			FuturesThreshold: cfg.EV.FuturesThreshold,
			MatchThreshold:   cfg.EV.MatchThreshold,
		},
		Gate: &trigger.GateConfig{
			CrunchWindow:      cfg.Trigger.CrunchWindow.Std(),
			VolatilityPct:     cfg.Trigger.VolatilityPct,
			AnalysesPerMinute: cfg.Trigger.AnalysesPerMinute,
		},
	}
}

func (d *daemon) startHTTP(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Most recent cycle report: pairs, orphans, signals.
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		report := d.engine.LastReport()
		if report == nil {
			json.NewEncoder(w).Encode(map[string]string{"status": "no cycle completed yet"})
			return
		}
		json.NewEncoder(w).Encode(report)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := map[string]interface{}{
			"ws_clients": d.streamHub.ClientCount(),
		}
		if report := d.engine.LastReport(); report != nil {
			status["pairs"] = report.Pairs
			status["signals"] = len(report.Signals)
			status["last_cycle_ms"] = report.Duration.Milliseconds()
		}
		json.NewEncoder(w).Encode(status)
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", d.metrics.Handler())

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", d.streamHub.ServeWS)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("HTTP server listening on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}
