package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/psantana5/ytconvert/internal/report"
	"github.com/psantana5/ytconvert/pkg/api"
	"github.com/psantana5/ytconvert/pkg/auth"
	"github.com/psantana5/ytconvert/pkg/cleanup"
	"github.com/psantana5/ytconvert/pkg/config"
	"github.com/psantana5/ytconvert/pkg/engine"
	"github.com/psantana5/ytconvert/pkg/logging"
	"github.com/psantana5/ytconvert/pkg/metrics"
	"github.com/psantana5/ytconvert/pkg/probe"
	"github.com/psantana5/ytconvert/pkg/ratelimit"
	"github.com/psantana5/ytconvert/pkg/retry"
	"github.com/psantana5/ytconvert/pkg/shutdown"
	"github.com/psantana5/ytconvert/pkg/store"
	tlsutil "github.com/psantana5/ytconvert/pkg/tls"
	"github.com/psantana5/ytconvert/pkg/tracing"
	"github.com/psantana5/ytconvert/pkg/wrapper"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion API server",
	Long: `Starts the HTTP API. POST /api/convert streams the converted media back
as an attachment while yt-dlp is still producing it.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		v.Set("server.port", port)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	sd := shutdown.New(cfg.Server.ShutdownTimeout, logger)
	sd.Register("logger", shutdown.CloseResource(logger, "logger"))

	logger.Info("starting convertd", logging.Fields{
		"version": version,
		"port":    cfg.Server.Port,
		"engine":  cfg.Engine.Binary,
		"history": cfg.History.Driver,
	})

	// History store
	st, err := store.NewStore(store.Config{
		Type:       cfg.History.Driver,
		DSN:        cfg.History.DSN,
		MaxRecords: cfg.History.MaxRecords,
	})
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	sd.Register("history store", shutdown.CloseResource(st, "history store"))

	// Tracing
	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    os.Getenv("CONVERTD_ENVIRONMENT"),
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		return err
	}
	sd.Register("tracing", tp.Shutdown)

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		sd.Register("metrics snapshot", func(ctx context.Context) error {
			if !logger.Enabled(logging.DEBUG) {
				return nil
			}
			return m.WriteText(logger.Writer(logging.DEBUG))
		})
	}

	// Conversion pipeline
	eng := engine.NewYtDlpEngine(engine.Options{
		Binary:    cfg.Engine.Binary,
		Referer:   cfg.Engine.Referer,
		UserAgent: cfg.Engine.UserAgent,
	})
	spawner := wrapper.NewExecSpawner()

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Probe.Retries
	prober := probe.New(spawner, eng, probe.Options{
		Enabled: cfg.Probe.Enabled,
		Timeout: cfg.Probe.Timeout,
		Retry:   retryCfg,
		Logger:  logger,
	})

	handler := api.NewHandler(api.Config{
		Engine:        eng,
		Prober:        prober,
		Spawner:       spawner,
		Store:         st,
		Metrics:       m,
		Logger:        logger,
		StrictQuality: cfg.Engine.StrictQuality,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	})

	// Optional layers
	authenticator, err := auth.NewKeyAuthenticator(cfg.Auth.APIKey, cfg.Auth.APIKeyHash, "/health")
	if err != nil {
		return err
	}
	if authenticator != nil {
		logger.Info("API authentication enabled")
	} else {
		logger.Warn("API authentication disabled; set auth.api_key or auth.api_key_hash")
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	router := api.NewRouter(handler, api.RouterOptions{
		Logger:       logger,
		Metrics:      m,
		Tracing:      tp,
		Auth:         authenticator,
		Limiter:      limiter,
		TrustProxy:   cfg.RateLimit.TrustProxy,
		ServeMetrics: m != nil && cfg.Metrics.Port == 0,
	})

	// Retention and limiter pruning
	cm := cleanup.NewCleanupManager(cleanup.CleanupConfig{
		Enabled:         true,
		Retention:       cfg.History.Retention,
		CleanupInterval: cfg.History.CleanupInterval,
		VacuumInterval:  24 * time.Hour,
		InitialDelay:    time.Minute,
	}, st, logger)
	if limiter != nil {
		idle := cfg.RateLimit.IdleTTL
		cm.AddPruner(func() {
			if n := limiter.CleanupOldLimiters(idle); n > 0 {
				logger.Debug("pruned idle rate limiters", logging.Fields{"removed": n})
			}
		})
	}
	cm.Start()
	sd.Register("cleanup manager", shutdown.CloseResource(cm, "cleanup manager"))

	// Every request context derives from requestsCtx; canceling it kills
	// the process groups of conversions still running at the deadline
	requestsCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	sd.Register("sessions", shutdown.CancelJobs(func() bool {
		return report.Global().InFlight() == 0
	}, cancelRequests, 5*time.Second, 250*time.Millisecond, "in-flight conversions"))

	errorLog := log.New(logger.Writer(logging.WARN), "", 0)

	// Metrics server on its own port
	if m != nil && cfg.Metrics.Port != 0 {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", m.Handler()).Methods("GET")
		metricsRouter.HandleFunc("/health", handler.Health).Methods("GET")

		metricsSrv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:      metricsRouter,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			ErrorLog:     errorLog,
		}
		go func() {
			logger.Info("metrics server listening", logging.Fields{"addr": metricsSrv.Addr})
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", logging.Fields{"error": err})
			}
		}()
		sd.Register("metrics server", shutdown.StopHTTPServer(metricsSrv, "metrics"))
	}

	// API server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     errorLog,
		BaseContext:  func(net.Listener) context.Context { return requestsCtx },
	}

	if cfg.TLS.Enabled {
		if err := ensureCert(cfg.TLS, logger); err != nil {
			return err
		}
		tlsConfig, err := tlsutil.LoadTLSConfig(cfg.TLS.Cert, cfg.TLS.Key, cfg.TLS.CA, cfg.TLS.RequireClientCert)
		if err != nil {
			return fmt.Errorf("failed to load TLS config: %w", err)
		}
		srv.TLSConfig = tlsConfig
	} else {
		logger.Warn("TLS disabled")
	}

	go func() {
		logger.Info("API server listening", logging.Fields{"addr": srv.Addr, "tls": cfg.TLS.Enabled})
		var err error
		if cfg.TLS.Enabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", logging.Fields{"error": err})
			sd.Trigger()
		}
	}()
	sd.Register("api server", shutdown.StopHTTPServer(srv, "api"))

	return sd.WaitWithContext(context.Background())
}

// ensureCert generates a self-signed pair when the configured files are missing
func ensureCert(c config.TLSConfig, logger *logging.Logger) error {
	if _, err := os.Stat(c.Cert); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", c.Cert, err)
	}

	logger.Warn("certificate not found, generating self-signed pair", logging.Fields{"cert": c.Cert, "key": c.Key})
	if err := tlsutil.GenerateSelfSignedCert(c.Cert, c.Key, "convertd"); err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}
	return nil
}
