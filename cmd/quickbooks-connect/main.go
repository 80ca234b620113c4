package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	persistence "github.com/goliatone/go-persistence-bun"
	quickbooks "github.com/goliatone/go-quickbooks"
	"github.com/goliatone/go-quickbooks/adapters/gojob"
	"github.com/goliatone/go-quickbooks/adapters/gologger"
	qbzerolog "github.com/goliatone/go-quickbooks/adapters/zerolog"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/httpapi"
	"github.com/goliatone/go-quickbooks/migrations"
	redisstore "github.com/goliatone/go-quickbooks/store/redis"
	sqlstore "github.com/goliatone/go-quickbooks/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type settings struct {
	Addr        string
	DBDriver    string
	DBDSN       string
	RedisAddr   string
	OwnerHeader string
	ReturnURL   string
	SweepEvery  time.Duration
	Debug       bool
}

func loadSettings() settings {
	s := settings{
		Addr:        envOr("QUICKBOOKS_HTTP_ADDR", ":8080"),
		DBDriver:    envOr("QUICKBOOKS_DB_DRIVER", "sqlite3"),
		DBDSN:       envOr("QUICKBOOKS_DB_DSN", "file:quickbooks.db?_foreign_keys=on"),
		RedisAddr:   os.Getenv("QUICKBOOKS_REDIS_ADDR"),
		OwnerHeader: envOr("QUICKBOOKS_OWNER_HEADER", "X-User-ID"),
		ReturnURL:   envOr("QUICKBOOKS_RETURN_URL", "/"),
		SweepEvery:  time.Hour,
		Debug:       os.Getenv("QUICKBOOKS_DEBUG") == "true",
	}
	if raw := os.Getenv("QUICKBOOKS_SWEEP_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			s.SweepEvery = parsed
		}
	}
	return s
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

type persistenceConfig struct {
	settings settings
}

func (c persistenceConfig) GetDebug() bool              { return c.settings.Debug }
func (c persistenceConfig) GetDriver() string           { return c.settings.DBDriver }
func (c persistenceConfig) GetServer() string           { return c.settings.DBDSN }
func (persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (persistenceConfig) GetOtelIdentifier() string     { return "quickbooks-connect" }

func main() {
	level := zerolog.InfoLevel
	if os.Getenv("QUICKBOOKS_DEBUG") == "true" {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loadSettings(), log); err != nil {
		log.Fatal().Err(err).Msg("quickbooks-connect stopped")
	}
}

// newRepositoryFactory caches connection reads only for a single instance.
// With Redis configured, several processes write the same rows and a
// process-local cache would serve tokens another instance already rotated.
func newRepositoryFactory(s settings) (*sqlstore.RepositoryFactory, error) {
	if s.RedisAddr != "" {
		return sqlstore.NewRepositoryFactory(), nil
	}
	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("connection cache: %w", err)
	}
	return sqlstore.NewRepositoryFactory(sqlstore.WithCacheService(cacheService)), nil
}

func run(ctx context.Context, s settings, log zerolog.Logger) error {
	loggers := qbzerolog.NewProvider(log)

	client, dialect, err := openPersistence(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	if err := migrations.Apply(ctx, client, dialect); err != nil {
		return err
	}

	factory, err := newRepositoryFactory(s)
	if err != nil {
		return err
	}

	opts := []quickbooks.Option{
		quickbooks.WithLoggerProvider(loggers),
		quickbooks.WithPersistenceClient(client),
		quickbooks.WithRepositoryFactory(factory),
	}
	if s.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		attempts, err := redisstore.NewAttemptStore(rdb)
		if err != nil {
			return err
		}
		locker, err := redisstore.NewConnectionLocker(rdb)
		if err != nil {
			return err
		}
		opts = append(opts, quickbooks.WithAttemptStore(attempts), quickbooks.WithConnectionLocker(locker))
	}

	svc, err := quickbooks.Setup(ctx, quickbooks.NewEnvConfigLoader(), quickbooks.Config{}, opts...)
	if err != nil {
		return fmt.Errorf("quickbooks setup: %w", err)
	}
	customers, err := quickbooks.NewCustomerClient(svc)
	if err != nil {
		return err
	}

	if !s.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "message": "OK"})
	})

	controller := httpapi.NewController(httpapi.ControllerConfig{ReturnURL: s.ReturnURL},
		engine.Group("/"), svc, httpapi.HeaderOwnerResolver(s.OwnerHeader), loggers.GetLogger("quickbooks.http"))
	controller.SetupRoutes()
	controller.SetupCustomerRoutes(customers)

	jobLogger, _, _ := gologger.ResolveForJobs(loggers, nil)
	sweeps := gojob.NewRefreshHandler(svc, gojob.RetryPolicy{}, jobLogger)
	go sweeps.RunSweeps(ctx, s.SweepEvery, core.RefreshSweepRequest{})

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Str("environment", string(svc.Environment())).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openPersistence(ctx context.Context, s settings) (*persistence.Client, string, error) {
	dialect, err := migrations.DialectForDriver(s.DBDriver)
	if err != nil {
		return nil, "", err
	}
	sqlDB, err := sql.Open(s.DBDriver, s.DBDSN)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}

	var bunDialect schema.Dialect
	switch dialect {
	case migrations.DialectPostgres:
		bunDialect = pgdialect.New()
	default:
		sqlDB.SetMaxOpenConns(1)
		bunDialect = sqlitedialect.New()
	}
	client, err := persistence.New(persistenceConfig{settings: s}, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("persistence client: %w", err)
	}
	return client, dialect, nil
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case code >= 400:
			event = log.Error()
		case code >= 300:
			event = log.Warn()
		default:
			event = log.Info()
		}
		if c.Request.URL.Path == "/healthz" {
			event = log.Debug()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("clientIp", c.ClientIP()).
			Int("status", code).
			Str("latency", time.Since(start).String()).
			Msg("Request")
	}
}
