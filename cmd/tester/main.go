package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/domain"
	"github.com/wingskh/live-stream-tester/internal/core/ports"
	"github.com/wingskh/live-stream-tester/internal/core/services"
	httphandlers "github.com/wingskh/live-stream-tester/internal/handlers/http"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/catalog"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/engines"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/middleware"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/monitoring"
	memoryrepo "github.com/wingskh/live-stream-tester/internal/infrastructure/repositories/memory"
	redisrepo "github.com/wingskh/live-stream-tester/internal/infrastructure/repositories/redis"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/signaling"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/stats"
	"github.com/wingskh/live-stream-tester/internal/infrastructure/surface"
	"github.com/wingskh/live-stream-tester/pkg/config"
	"github.com/wingskh/live-stream-tester/pkg/logger"
)

func main() {
	sweepMode := flag.Bool("sweep", false, "run a full format sweep and exit")
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg := loadConfig(*configPath)

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Result log: redis when configured, in-memory ring otherwise.
	var results ports.ResultRepository
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisrepo.CloseRedisClient(client)
		results = redisrepo.NewResultRepository(client, domain.ResultLogSize)
	} else {
		results = memoryrepo.NewResultRepository(domain.ResultLogSize)
	}

	samples := loadCatalog(cfg.Catalog.Path, log)

	var metrics ports.MetricsRecorder = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	registry := engines.NewRegistry(engines.RegistryOptions{
		Capabilities:     resolveCapabilities(cfg),
		HTTPClient:       &http.Client{Timeout: 30 * time.Second},
		ICEServers:       iceServers(cfg),
		Dialer:           signaling.NewWebSocketDialer(cfg.Signaling.DialAttempts, cfg.Signaling.PingInterval, cfg.Signaling.WriteTimeout, log),
		HandshakeTimeout: cfg.Signaling.HandshakeTimeout,
		Sampler:          stats.NewSampler(cfg.Stats.SampleInterval, log),
		Sink:             &stats.LogSink{Logger: log},
		Logger:           log,
	})

	sessions := services.NewPlaybackSessionService(
		registry,
		surface.New(log),
		results,
		metrics,
		cfg.Session.DebounceWindow,
		cfg.Session.TeardownTimeout,
		log,
	)
	defer sessions.Close()

	fallback := services.NewFallbackController(sessions, metrics, log)
	sessions.SetErrorHook(fallback.OnError)

	sweep := services.NewSweepController(sessions, samples, results, metrics, services.SweepOptions{
		FormatTimeout: cfg.Sweep.FormatTimeout,
		PollInterval:  cfg.Sweep.PollInterval,
		SettleDelay:   cfg.Sweep.SettleDelay,
	}, log)

	if *sweepMode {
		runSweep(sweep, log)
		return
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	httphandlers.NewTestHandler(sessions, fallback, sweep, results, registry).SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, log)
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("live-stream-tester listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnw("forced shutdown", "error", err)
	}
}

func loadConfig(explicit string) *config.Config {
	paths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	if explicit != "" {
		paths = []string{explicit}
	}

	for _, path := range paths {
		if cfg, err := config.Load(path); err == nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}

func loadCatalog(path string, log *zap.SugaredLogger) ports.SampleCatalog {
	if path == "" {
		return catalog.Empty()
	}
	c, err := catalog.Load(path)
	if err != nil {
		log.Warnw("failed to load sample catalog, sweeps will test nothing", "path", path, "error", err)
		return catalog.Empty()
	}
	return c
}

func resolveCapabilities(cfg *config.Config) domain.RuntimeCapabilities {
	caps := domain.DefaultCapabilities()
	if cfg.Capabilities.DisableAdaptiveLibrary {
		caps.AdaptiveLibrary = false
	}
	if cfg.Capabilities.DisableAdaptiveNative {
		caps.AdaptiveNative = false
	}
	if cfg.Capabilities.DisablePeerToPeer {
		caps.PeerToPeer = false
	}
	if cfg.Capabilities.DisableMediaBuffering {
		caps.MediaBuffering = false
	}
	if cfg.Capabilities.DisableLegacyPush {
		caps.LegacyPush = false
	}
	return caps
}

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	if len(cfg.WebRTC.ICEServers) == 0 {
		return []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}
	servers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

func runSweep(sweep ports.SweepService, log *zap.SugaredLogger) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outcomes, err := sweep.Run(ctx)
	if err != nil {
		log.Fatalw("sweep aborted", "error", err)
	}
	for _, o := range outcomes {
		fmt.Printf("%-8s %-10s %s\n", o.Format, o.Status, o.Reason)
	}
}

func serveMetrics(port int, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Fatalw("metrics server failed", "error", err)
	}
}
