package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/gaspardpetit/imgrelay/internal/backend"
	"github.com/gaspardpetit/imgrelay/internal/config"
	"github.com/gaspardpetit/imgrelay/internal/drain"
	"github.com/gaspardpetit/imgrelay/internal/endpoint"
	"github.com/gaspardpetit/imgrelay/internal/logx"
	"github.com/gaspardpetit/imgrelay/internal/metrics"
	"github.com/gaspardpetit/imgrelay/internal/relay"
	"github.com/gaspardpetit/imgrelay/internal/server"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	if err := config.LoadDotEnv(".env"); err != nil {
		logx.Log.Fatal().Err(err).Msg("load .env")
	}
	var cfg config.ServerConfig
	// defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "imgrelay version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("imgrelay version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logx.Log.Debug().Msgf(format, args...)
	})); err != nil {
		logx.Log.Warn().Err(err).Msg("set GOMAXPROCS")
	}

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	initial, err := endpoint.Normalize(cfg.BackendURL)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("backend url")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store endpoint.Store
	if cfg.RedisAddr != "" {
		rs, err := endpoint.NewRedisStore(ctx, cfg.RedisAddr, initial)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		defer func() { _ = rs.Close() }()
		store = rs
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis backend url store")
	} else {
		store = endpoint.NewMemoryStore(initial)
	}

	client := backend.New(backend.Options{
		UserAgent:          cfg.UserAgent,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		GenerateTimeout:    cfg.GenerateTimeout,
		HealthTimeout:      cfg.HealthTimeout,
	})
	svc := relay.NewService(client, store)
	tracker := &drain.Tracker{}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(cfg, svc, preg, tracker),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var metricsSrv *http.Server
	if !cfg.MetricsOnMainPort() {
		metricsSrv = &http.Server{Addr: cfg.MetricsListenAddr(), Handler: server.MetricsHandler(preg), ReadHeaderTimeout: 10 * time.Second}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if tracker.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			tracker.Start()
			waitCtx, stop := ctx, context.CancelFunc(func() {})
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int64("inflight", tracker.Count()).Msg("draining; send SIGTERM again to terminate immediately")
				waitCtx, stop = context.WithTimeout(ctx, cfg.DrainTimeout)
			} else {
				logx.Log.Info().Int64("inflight", tracker.Count()).Msg("draining; send SIGTERM again to terminate immediately")
			}
			go func() {
				defer stop()
				if tracker.WaitForZero(waitCtx) {
					logx.Log.Info().Msg("drain complete; terminating")
				} else if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
					logx.Log.Warn().Int64("inflight", tracker.Count()).Msg("drain timeout exceeded; terminating")
				}
				cancel()
			}()
		}
	}()
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		<-ctx.Done()
		sctx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := srv.Shutdown(sctx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(sctx); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if cfg.AdminKey != "" {
		logx.Log.Info().Msg("admin key required for backend url updates")
	}
	logx.Log.Info().Str("backend_url", initial).Msg("backend configured")
	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("server starting")
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", metricsSrv.Addr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	<-idle
}
