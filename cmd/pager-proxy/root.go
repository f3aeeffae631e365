package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/cache"
	"github.com/Sternrassler/timeseries-pager/pkg/client"
	"github.com/Sternrassler/timeseries-pager/pkg/datasource"
	"github.com/Sternrassler/timeseries-pager/pkg/logging"
	"github.com/Sternrassler/timeseries-pager/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "PAGER"

// proxyConfig is the resolved configuration of the binary.
type proxyConfig struct {
	Listen      string
	BackendURL  string
	RedisAddr   string
	Datasource  string
	CacheTTL    time.Duration
	PageTimeout time.Duration
	Concurrency int
	LogLevel    logging.LogLevel
	Pretty      bool
}

func newRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:          "pager-proxy",
		Short:        "Serve paginated, cached time-series queries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := command.Flags()
	flags.String("listen", ":8080", "Address to serve HTTP on")
	flags.String("backend-url", "", "Base URL of the time-series backend (required)")
	flags.String("redis-addr", "", "Redis address for the shared result cache, empty keeps results in memory only")
	flags.String("datasource", "default", "Name namespacing cache keys")
	flags.Duration("cache-ttl", cache.DefaultTTL, "How long completed results are reused")
	flags.Duration("page-timeout", 0, "Timeout per page fetch, zero for none")
	flags.Int("concurrency", 4, "Maximum concurrent runs per batch request")
	flags.String("log-level", "info", "Log level: debug, info, warn, error, disabled")
	flags.Bool("pretty", false, "Human readable console logs")

	return command
}

// loadConfig resolves the command's flags and PAGER_* environment variables.
// Flags given on the command line win over the environment.
func loadConfig(cmd *cobra.Command) (proxyConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return proxyConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	level, err := logging.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return proxyConfig{}, err
	}

	cfg := proxyConfig{
		Listen:      v.GetString("listen"),
		BackendURL:  v.GetString("backend-url"),
		RedisAddr:   v.GetString("redis-addr"),
		Datasource:  v.GetString("datasource"),
		CacheTTL:    v.GetDuration("cache-ttl"),
		PageTimeout: v.GetDuration("page-timeout"),
		Concurrency: v.GetInt("concurrency"),
		LogLevel:    level,
		Pretty:      v.GetBool("pretty"),
	}

	if cfg.BackendURL == "" {
		return cfg, fmt.Errorf("backend url is required (--backend-url or %s_BACKEND_URL)", envPrefix)
	}
	if cfg.Concurrency < 0 {
		return cfg, fmt.Errorf("concurrency must be >= 0 (got %d)", cfg.Concurrency)
	}
	return cfg, nil
}

// newService wires the backend client, the cache and the datasource service.
// With a Redis client, cached results and rate limit state are shared
// between proxy instances.
func newService(cfg proxyConfig, redisClient *redis.Client) (*datasource.Service, error) {
	clientCfg := client.DefaultConfig(cfg.BackendURL)
	clientCfg.Limiter = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))

	backend, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.MemoryTTL = cfg.CacheTTL
	manager := cache.NewManager(redisClient, cacheCfg)

	dsCfg := datasource.DefaultConfig(cfg.Datasource)
	dsCfg.CacheTTL = cfg.CacheTTL
	dsCfg.Concurrency = cfg.Concurrency
	dsCfg.Engine.Timeout = cfg.PageTimeout

	return datasource.New(backend.Fetch, manager, dsCfg), nil
}

func run(ctx context.Context, cfg proxyConfig) error {
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Pretty,
		Output: os.Stderr,
	})

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
	}

	svc, err := newService(cfg, redisClient)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newHandler(svc, logging.NewLogger("proxy")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", cfg.Listen).
			Str("backend", cfg.BackendURL).
			Msg("Starting pager proxy")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down pager proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
