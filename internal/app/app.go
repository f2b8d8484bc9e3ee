package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkup/internal/config"
	"github.com/MrSnakeDoc/linkup/internal/domain"
	"github.com/MrSnakeDoc/linkup/internal/httpserver"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkup/internal/logger"
	"github.com/MrSnakeDoc/linkup/internal/redis"
	"github.com/MrSnakeDoc/linkup/internal/scheduler"
	"github.com/MrSnakeDoc/linkup/internal/sessions"
	"github.com/MrSnakeDoc/linkup/internal/store/memory"
	redisstore "github.com/MrSnakeDoc/linkup/internal/store/redis"
	"github.com/MrSnakeDoc/linkup/internal/version"
)

// App is one linkup server process, local or remote.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	mode        string
	server      *httpserver.Server
	redisClient *goredis.Client
	watcher     *scheduler.StateWatcher
	gc          *scheduler.GarbageCollector
}

// New wires a server for mode (deps.ModeLocal or deps.ModeRemote).
//
// A local server keeps sessions in memory and follows the local state file
// for the local/remote switch. A remote server uses Redis when
// LINKUP_REDIS_ADDR is set and memory otherwise; it never routes locally.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger, mode string) (*App, error) {
	a := &App{cfg: cfg, logger: loggerClient.With(logger.String("mode", mode)), mode: mode}

	var (
		backend   sessions.Backend
		storeName string
	)
	switch {
	case mode == deps.ModeLocal:
		backend, storeName = memory.NewStore(), "memory"
	case mode == deps.ModeRemote && cfg.RedisAddr != "":
		// Fail fast if Redis is unavailable
		a.logger.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redisClient = client
		backend, storeName = redisstore.NewStore(client, cfg.SessionTTL), "redis"
	case mode == deps.ModeRemote:
		backend, storeName = memory.NewStore(), "memory"
	default:
		return nil, fmt.Errorf("unknown server mode %q", mode)
	}

	store := sessions.NewStore(backend, a.logger)

	d := deps.Deps{
		Logger:       a.logger,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		Mode:         mode,
		Sessions:     store,
		Transport:    newTransport(cfg.UpstreamTimeout),
		StoreName:    storeName,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
		RatePerMin:   cfg.RatePerMin,
		MaxBodySize:  cfg.MaxBodySize,
	}

	if mode == deps.ModeLocal {
		a.watcher = scheduler.NewStateWatcher(cfg.StatePath(), a.logger, cfg.StateReloadInterval)
		d.Targets = a.watcher.Targets
		d.ReloadState = a.watcher.Reload
	} else {
		d.Targets = func() domain.Targets { return domain.RemoteOnly{} }
	}

	// Redis expires keys itself; the collector sweeps the memory store.
	if storeName == "memory" {
		a.gc = scheduler.NewGarbageCollector(store, a.logger, cfg.GCInterval, cfg.SessionTTL)
	}

	a.server = httpserver.New(cfg, a.logger, d)
	return a, nil
}

// Handler exposes the router without a listener.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Run serves until SIGINT/SIGTERM or ctx ends, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting linkup %s server v%s on %s", a.mode, version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", a.cfg.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.ListenPort, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to start state watcher: %w", err)
		}
		a.logger.Info("state watcher started",
			logger.String("path", a.cfg.StatePath()),
			logger.Duration("interval", a.cfg.StateReloadInterval))
	}

	if a.gc != nil {
		if err := a.gc.Start(ctx); err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to start garbage collector: %w", err)
		}
		if a.gc.Enabled() {
			a.logger.Info("garbage collector started",
				logger.Duration("interval", a.cfg.GCInterval),
				logger.Duration("ttl", a.cfg.SessionTTL))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.gc != nil {
		a.gc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ linkup server stopped cleanly")
	return nil
}

// newTransport bounds how long an upstream may take to answer headers. Bodies
// stream without a deadline.
func newTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.ResponseHeaderTimeout = headerTimeout
	t.MaxIdleConnsPerHost = 32
	return t
}
