package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/coordinator"
	"main/internal/engine"
	"main/internal/guard"
	"main/internal/journal"
	"main/internal/obs"
	"main/internal/oplog"
	"main/internal/ops"
	"main/internal/ratelimit"
	"main/internal/strategy"
	"main/internal/venue"
	"main/internal/venue/binance"
	"main/internal/venue/paper"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "config/keeper.yaml", "Path to YAML config")
	dryRun := flag.Bool("dry-run", false, "Use the in-memory paper venue instead of the live one")
	flag.Parse()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Pyroscope.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "keeper",
			ServerAddress:   cfg.Pyroscope.ServerURL,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed, err: %v", err)
			os.Exit(1)
		}
		defer func() { _ = profiler.Stop() }()
	}

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr)
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(conn.Option{
			Host:     cfg.Journal.Host,
			Port:     cfg.Journal.Port,
			User:     cfg.Journal.User,
			Password: cfg.Journal.Password,
			Database: cfg.Journal.Database,
		})
		if err != nil {
			logs.Errorf("journal open failed, err: %v", err)
			os.Exit(1)
		}
		defer func() { _ = jrnl.Close() }()
	}

	var v venue.Venue
	if *dryRun {
		logs.Info("dry run: orders stay in memory")
		v = paper.New()
	} else {
		v = binance.New(binance.Config{
			BaseURL:   cfg.Venue.BaseURL,
			WsURL:     cfg.Venue.WsURL,
			APIKey:    cfg.Venue.APIKey,
			APISecret: cfg.Venue.APISecret,
		})
	}

	for _, ec := range cfg.Engines {
		eng := buildEngine(v, jrnl, ec)
		go func(symbol string) {
			if err := eng.Run(ctx); err != nil {
				logs.Errorf("engine %s stopped, err: %v", symbol, err)
			}
		}(ec.Symbol)
	}

	select {
	case <-ctx.Done():
	case <-sys.Shutdown():
	}
	logs.Info("keeper shutting down")
}

func buildEngine(v venue.Venue, jrnl *journal.Journal, ec ops.EngineConfig) *engine.Engine {
	sink := oplog.NewSink(0)

	coord := coordinator.New(v, coordinator.Config{
		Symbol:               ec.Symbol,
		LockTimeout:          ec.LockTimeout,
		MaxPriceDeviationPct: ec.MaxPriceDeviationPct,
		PriceTick:            ec.PriceTick,
	}, sink)

	g := guard.New(coord, guard.Config{
		LossLimit: ec.LossLimit,
		PriceTick: ec.PriceTick,
	}, sink)

	limiter := ratelimit.New(ratelimit.Config{
		BaseBackoff:    ec.RateLimit.BaseBackoff,
		MaxBackoff:     ec.RateLimit.MaxBackoff,
		ActionInterval: ec.RateLimit.ActionInterval,
	})

	maker := &strategy.Maker{
		OffsetPct: ec.Strategy.OffsetPct,
		Levels:    ec.Strategy.Levels,
		Quantity:  ec.Strategy.Quantity,
		PriceTick: ec.PriceTick,
	}

	return engine.New(v, coord, g, limiter, maker, jrnl, sink, engine.Config{
		Symbol:          ec.Symbol,
		TickInterval:    ec.TickInterval,
		PriceTolerance:  ec.PriceTolerance,
		BalanceCooldown: ec.BalanceCooldown,
	})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logs.Infof("metrics listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logs.Errorf("metrics server failed, err: %v", err)
	}
}
