// Package runtime wires configuration into running components.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/tasksync/internal/adapters/driven/auth"
	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors"
	"github.com/custodia-labs/tasksync/internal/adapters/driven/memory"
	"github.com/custodia-labs/tasksync/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/tasksync/internal/adapters/driven/redis"
	"github.com/custodia-labs/tasksync/internal/adapters/driven/sqlite"
	httpapi "github.com/custodia-labs/tasksync/internal/adapters/driving/http"
	"github.com/custodia-labs/tasksync/internal/config"
	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
	"github.com/custodia-labs/tasksync/internal/core/services"
)

// Options carries what Build needs besides the configuration.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	// Factory defaults to connectors.NewFactory().
	Factory *connectors.Factory
	// HTTPClient is handed to both connectors when set.
	HTTPClient *http.Client
}

// Services holds every component built from the configuration. Close
// releases them in reverse order of construction.
type Services struct {
	Config   *config.Config
	Logger   *slog.Logger
	Database driven.DocumentDatabase
	Lock     driven.DistributedLock
	Engine   *services.SyncEngine
	// Auth is nil when no JWT secret is configured.
	Auth driving.AuthService

	version string

	mu      sync.Mutex
	closers []io.Closer
}

// Build validates cfg, connects the backends, builds both connectors and
// initializes the engine. On error every resource opened so far is closed.
func Build(ctx context.Context, opts Options) (_ *Services, err error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Services{Config: cfg, Logger: logger, version: opts.Version}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	backends, err := s.openBackends(ctx)
	if err != nil {
		return nil, err
	}
	s.Database = backends.database
	s.Lock = backends.lock

	factory := opts.Factory
	if factory == nil {
		factory = connectors.NewFactory()
	}
	one, err := factory.Create(cfg.Service1.Name, settings(cfg.Service1, opts.HTTPClient))
	if err != nil {
		return nil, err
	}
	two, err := factory.Create(cfg.Service2.Name, settings(cfg.Service2, opts.HTTPClient))
	if err != nil {
		return nil, err
	}

	direction, err := domain.ParseDirection(cfg.Direction)
	if err != nil {
		return nil, err
	}

	s.Engine = services.NewSyncEngine(services.SyncEngineConfig{
		Service1:        services.NewAdapter(one),
		Service2:        services.NewAdapter(two),
		Database:        s.Database,
		Lock:            s.Lock,
		Direction:       direction,
		FieldMap:        cfg.FieldMap,
		Logger:          logger,
		LockTTL:         cfg.LockTTL,
		RetryDelay:      cfg.FetchRetryDelay,
		PollingInterval: cfg.Poll(),
		StoreTimeout:    cfg.StoreTimeout,
	})
	if err := s.Engine.Init(ctx); err != nil {
		return nil, err
	}

	s.Auth = NewAuth(cfg.HTTP.JWTSecret)

	logger.Info("runtime ready",
		"store", cfg.Store.Backend,
		"lock", cfg.Lock.Backend,
		"service1", cfg.Service1.Name,
		"service2", cfg.Service2.Name,
		"direction", direction,
	)
	return s, nil
}

// NewAuth returns the operator token service for secret, or nil when the
// secret is empty.
func NewAuth(secret string) driving.AuthService {
	if secret == "" {
		return nil
	}
	return services.NewAuthService(auth.NewAdapter(secret))
}

// HTTPServer builds the operator API over the engine.
func (s *Services) HTTPServer() *httpapi.Server {
	cfg := httpapi.DefaultConfig()
	cfg.Host = s.Config.HTTP.Host
	cfg.Port = s.Config.HTTP.Port
	cfg.Logger = s.Logger
	if s.version != "" {
		cfg.Version = s.version
	}
	return httpapi.NewServer(cfg, httpapi.Deps{
		Engine:      s.Engine,
		AuthService: s.Auth,
		Store:       s.Database,
		Lock:        s.Lock,
	})
}

// Close stops auto-sync and releases every backend.
func (s *Services) Close() error {
	if s.Engine != nil {
		s.Engine.DisableAutoSync()
	}

	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Services) track(c io.Closer) {
	s.mu.Lock()
	s.closers = append(s.closers, c)
	s.mu.Unlock()
}

type backends struct {
	database driven.DocumentDatabase
	lock     driven.DistributedLock
}

// openBackends connects the document database and the lock, sharing one
// connection when both use the same server.
func (s *Services) openBackends(ctx context.Context) (*backends, error) {
	cfg := s.Config.Store
	var (
		b        backends
		pgDB     *postgres.DB
		redisCli *goredis.Client
	)

	pg := func() (*postgres.DB, error) {
		if pgDB != nil {
			return pgDB, nil
		}
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.PostgresURL))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.track(db)
		pgDB = db
		return db, nil
	}
	rds := func() (*goredis.Client, error) {
		if redisCli != nil {
			return redisCli, nil
		}
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.track(client)
		redisCli = client
		return client, nil
	}

	switch cfg.Backend {
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.track(db)
		b.database = db
	case config.StorePostgres:
		db, err := pg()
		if err != nil {
			return nil, err
		}
		b.database = postgres.NewDatabase(db)
	case config.StoreRedis:
		client, err := rds()
		if err != nil {
			return nil, err
		}
		b.database = redisadapter.NewDatabase(client)
	}

	switch s.Config.Lock.Backend {
	case config.LockMemory:
		b.lock = memory.NewLock()
	case config.LockPostgres:
		db, err := pg()
		if err != nil {
			return nil, err
		}
		b.lock = postgres.NewLeaseLock(db)
	case config.LockRedis:
		client, err := rds()
		if err != nil {
			return nil, err
		}
		b.lock = redisadapter.NewLeaseLock(client)
	}

	s.Logger.Debug("backends connected", "store", cfg.Backend, "lock", s.Config.Lock.Backend)
	return &b, nil
}

func settings(svc config.Service, client *http.Client) connectors.Settings {
	return connectors.Settings{
		Kind:         svc.Kind,
		BaseURL:      svc.BaseURL,
		Username:     svc.Username,
		Token:        svc.Token,
		AgentURL:     svc.AgentURL,
		Workspace:    svc.Workspace,
		Projects:     svc.Projects,
		MaxRetries:   svc.MaxRetries,
		RetryBackoff: svc.RetryBackoff,
		HTTPClient:   client,
	}
}
