// Package app wires the Atelier collaboration server runtime: config, logging,
// HTTP routes, persistence, identity, and the realtime gateway.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"atelier/cmd/internal/board"
	"atelier/cmd/internal/identity"
	"atelier/cmd/internal/realtime"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the collaboration server runtime: it owns HTTP wiring and the
// realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redis *redis.Client

	ws      *realtime.WSGateway
	history *realtime.HistoryHandler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		st.close()
		return nil, err
	}

	resolver, err := newResolver(cfg, log, redisClient)
	if err != nil {
		st.close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	router := realtime.NewRouter(log)
	engine := board.NewEngine(log, st.tasks, realtime.NewTaskPublisher(log, router),
		board.WithIntakeStatuses(cfg.StaffIntakeStatus, cfg.ClientIntakeStatus))

	ws := realtime.NewWSGateway(log, realtime.GatewayDeps{
		Resolver:   resolver,
		Router:     router,
		Messages:   st.messages,
		Membership: st.membership,
		Delivery:   realtime.NewDeliveryTracker(log, st.messages),
		Board:      engine,
	})

	history := realtime.NewHistoryHandler(log, resolver, st.membership, st.messages)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    st.pool,
		dbEnabled: st.dbEnabled,
		redis:     redisClient,
		ws:        ws,
		history:   history,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.history)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Typing indicators expire by TTL; the sweep loop is what turns silence
	// into isTyping:false broadcasts.
	go a.ws.Typing().Run(runCtx)

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// stores groups everything persistence-related so wiring stays one call.
type stores struct {
	lifecycle Store

	pool      *pgxpool.Pool
	dbEnabled bool

	messages   realtime.MessageStore
	tasks      board.TaskStore
	membership realtime.MembershipStore
}

func (s *stores) Close(ctx context.Context) error { return s.lifecycle.Close(ctx) }

func (s *stores) close() { _ = s.lifecycle.Close(context.Background()) }

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_stores")
		return &stores{
			lifecycle:  nopStore{},
			messages:   realtime.NewInMemoryStore(),
			tasks:      board.NewInMemoryStore(),
			membership: realtime.NewInMemoryMembership(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info("db.enabled.postgres_stores", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - the per-store Close() methods are no-ops
	msgStore, err := realtime.NewPostgresStore(pool, realtime.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	taskStore, err := board.NewPostgresStore(pool, board.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	members, err := realtime.NewPostgresMembership(pool, realtime.WithMembershipSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &stores{
		lifecycle:  dbStore{pool: pool},
		pool:       pool,
		dbEnabled:  true,
		messages:   msgStore,
		tasks:      taskStore,
		membership: members,
	}, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// newRedisClient builds the optional revocation-store client.
func newRedisClient(cfg Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// newResolver picks the handshake identity resolver.
//
// Production mode (RequireTokenHMAC or a configured key) verifies HS256
// bearer tokens, optionally against the Redis revocation denylist. Without a
// key the static dev resolver is used, which admits nobody until seeded.
func newResolver(cfg Config, log Logger, redisClient *redis.Client) (identity.Resolver, error) {
	_, keyErr := identity.HMACKeyFromEnv()
	if keyErr != nil && !cfg.RequireTokenHMAC {
		log.Warn("auth.dev.static_resolver", "reason", keyErr.Error())
		return identity.NewStaticResolver(), nil
	}

	var opts []identity.JWTOption
	if redisClient != nil {
		denylist, err := identity.NewRedisDenylist(redisClient)
		if err != nil {
			return nil, err
		}
		opts = append(opts, identity.WithDenylist(denylist))
		log.Info("auth.denylist.redis_enabled")
	}

	return identity.NewJWTResolverFromEnv(opts...)
}
