package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/chain"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/config"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/identity"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/ledger"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/middleware"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection/migrations"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/reconcile"
	"github.com/NeptuneChain-Inc/NPC-Backend/services/accounts"
	"github.com/NeptuneChain-Inc/NPC-Backend/services/assets"
	commonservice "github.com/NeptuneChain-Inc/NPC-Backend/services/common/service"
	"github.com/NeptuneChain-Inc/NPC-Backend/services/credits"
	"github.com/NeptuneChain-Inc/NPC-Backend/services/projector"
	"github.com/NeptuneChain-Inc/NPC-Backend/services/reconciler"
)

// ServiceRunner is what main starts and stops.
type ServiceRunner interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// node is a fully wired process.
type node struct {
	router   *mux.Router
	services []ServiceRunner
	closers  []io.Closer
}

// ledgerBackend bundles a backend with its block and stream sources.
type ledgerBackend interface {
	ledger.Backend
	ledger.BlockSource
	ledger.StreamSource
}

func buildLedger(cfg config.LedgerConfig) (ledgerBackend, io.Closer, error) {
	if cfg.Backend == config.LedgerSimulated {
		return ledger.NewSimulated(), nil, nil
	}

	client, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.RPCURL,
		NetworkID: cfg.NetworkMagic,
		Timeout:   rpcTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create rpc client: %w", err)
	}
	account, err := chain.AccountFromPrivateKey(cfg.SignerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load signer: %w", err)
	}
	builder := chain.NewTxBuilder(client, account, cfg.NetworkMagic, cfg.ValidBlocks)

	var (
		ws     *chain.WSClient
		closer io.Closer
	)
	if cfg.WSURL != "" {
		ws = chain.NewWSClient(cfg.WSURL)
		closer = ws
	}

	backend, err := ledger.NewRPCBackend(client, builder, ws, chain.ContractAddresses{
		Accounts:     cfg.AccountsHash,
		Verification: cfg.VerificationHash,
		Credits:      cfg.CreditsHash,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create rpc backend: %w", err)
	}
	return backend, closer, nil
}

func buildStore(ctx context.Context, cfg config.ProjectionConfig) (projection.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.ProjectionRedis:
		s, err := projection.NewRedisStore(ctx, projection.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.ProjectionPostgres:
		s, err := projection.OpenSQL(ctx, migrations.DialectPostgres, cfg.PostgresDSN, cfg.Migrate)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.ProjectionSQLite:
		s, err := projection.OpenSQL(ctx, migrations.DialectSQLite, cfg.SQLitePath, cfg.Migrate)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return projection.NewMemoryStore(), nil, nil
	}
}

func resilientConfig(cfg config.ProjectionConfig) projection.ResilientConfig {
	rc := projection.ResilientConfig{
		Retry:          projection.DefaultRetryConfig(),
		CircuitBreaker: projection.DefaultCircuitBreakerConfig(),
	}
	if cfg.MaxRetries >= 0 {
		rc.Retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		rc.Retry.InitialBackoff = cfg.RetryDelay
	}
	if cfg.BreakerThreshold > 0 {
		rc.CircuitBreaker.FailureThreshold = cfg.BreakerThreshold
	}
	if cfg.BreakerCooldown > 0 {
		rc.CircuitBreaker.Timeout = cfg.BreakerCooldown
	}
	return rc
}

func buildIdentity(cfg config.IdentityConfig) (identity.Verifier, error) {
	if cfg.BaseURL == "" {
		return identity.NewStaticVerifier(cfg.VerifiedAccounts()...), nil
	}
	return identity.NewHTTPVerifier(identity.HTTPConfig{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	})
}

func buildMiddleware(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics, limiter *middleware.RateLimiter) ([]mux.MiddlewareFunc, error) {
	mws := []mux.MiddlewareFunc{
		middleware.NewTracingMiddleware(logger).Handler,
		middleware.MetricsMiddleware("npcd", m),
		middleware.NewCORSMiddleware(cfg.CORS.Origins()).Handler,
	}

	if cfg.Auth.Enabled {
		key, err := middleware.LoadPublicKey(cfg.Auth.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		auth := middleware.NewAuthMiddleware(middleware.AuthOptions{
			PublicKey: key,
			Issuer:    cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			SkipPaths: []string{"/health", "/info", "/metrics"},
		}, logger)
		mws = append(mws, auth.Handler)
	} else {
		logger.Warn(context.Background(), "auth disabled; acting user taken from request headers", nil)
		mws = append(mws, middleware.HeaderIdentity)
	}

	return append(mws, limiter.Handler), nil
}

func wire(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*node, error) {
	n := &node{router: mux.NewRouter()}

	backend, wsCloser, err := buildLedger(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	if wsCloser != nil {
		n.closers = append(n.closers, wsCloser)
	}
	gw := ledger.NewGateway(backend, ledger.GatewayConfig{
		FinalityTimeout: cfg.Ledger.FinalityTimeout,
		PollInterval:    cfg.Ledger.PollInterval,
	}, logger, m)

	inner, storeCloser, err := buildStore(ctx, cfg.Projection)
	if err != nil {
		return nil, fmt.Errorf("open projection store: %w", err)
	}
	if storeCloser != nil {
		n.closers = append(n.closers, storeCloser)
	}
	store := projection.NewResilient(inner, resilientConfig(cfg.Projection), m)

	// the queue bypasses the breaker so drift can still be recorded while
	// the projection path is failing
	queue := reconcile.NewQueueReporter(inner)
	reporter := reconcile.MultiReporter{reconcile.NewLogReporter(logger, m), queue}
	committer := reconcile.NewCommitter(store, reporter, logger)

	verifier, err := buildIdentity(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("create identity verifier: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	mws, err := buildMiddleware(cfg, logger, m, limiter)
	if err != nil {
		return nil, err
	}
	n.router.Use(mws...)

	assetSvc, err := assets.New(assets.Config{Ledger: gw, Committer: committer, Logger: logger, Router: n.router})
	if err != nil {
		return nil, err
	}
	creditSvc, err := credits.New(credits.Config{Ledger: gw, Committer: committer, Logger: logger, Router: n.router})
	if err != nil {
		return nil, err
	}
	accountSvc, err := accounts.New(accounts.Config{
		Ledger:    gw,
		Identity:  verifier,
		Committer: committer,
		Logger:    logger,
		Router:    n.router,
	})
	if err != nil {
		return nil, err
	}

	var source projector.Source
	if cfg.Ledger.SubscriberMode != config.SubscriberOff {
		sub, err := ledger.NewSubscriber(backend, backend, ledger.SubscriberConfig{
			Mode:         cfg.Ledger.SubscriberMode,
			PollInterval: cfg.Ledger.PollInterval,
		}, logger, m)
		if err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}
		source = sub
	}
	projectorSvc, err := projector.New(projector.Config{
		Ledger:    gw,
		Source:    source,
		Committer: committer,
		Logger:    logger,
		Metrics:   m,
		Router:    n.router,
	})
	if err != nil {
		return nil, err
	}

	reconcilerSvc, err := reconciler.New(reconciler.Config{
		Queue:          queue,
		Target:         store,
		Ledger:         gw,
		Resolvers: map[string]reconcile.Resolver{
			assets.ResolverDispute:      assetSvc.Lifecycle(),
			credits.ResolverCertificate: creditSvc.Orchestrator(),
			projector.ResolverBatch:     projectorSvc.Writer(),
		},
		Reporter:       reporter,
		RepairSchedule: cfg.Reconciliation.RepairSchedule,
		AuditSchedule:  cfg.Reconciliation.AuditSchedule,
		MaxAttempts:    cfg.Reconciliation.MaxAttempts,
		Logger:         logger,
		Metrics:        m,
		Router:         n.router,
	})
	if err != nil {
		return nil, err
	}

	root := commonservice.NewBase(commonservice.BaseConfig{
		ID:      "npcd",
		Name:    "NeptuneChain Backend",
		Version: version,
		Logger:  logger,
		Router:  n.router,
	})
	root.WithHealthCheck("ledger", func(ctx context.Context) error {
		_, err := backend.BlockCount(ctx)
		return err
	})
	root.WithHealthCheck("projection", func(ctx context.Context) error {
		_, err := store.Get(ctx, projection.Cursor())
		if errors.Is(err, projection.ErrNotFound) {
			return nil
		}
		return err
	})
	root.WithStats(func() map[string]any {
		return map[string]any{
			assets.ServiceID:     assetSvc.Lifecycle().Stats().Export(),
			credits.ServiceID:    creditSvc.Orchestrator().Stats().Export(),
			accounts.ServiceID:   accountSvc.Gate().Stats().Export(),
			projector.ServiceID:  projectorSvc.Writer().Stats(),
			"projection_breaker": store.CircuitState().String(),
			"rate_limited_keys":  limiter.Len(),
		}
	})
	root.AddTickerWorker(rateLimiterSweep, limiter.Cleanup)
	root.RegisterStandardRoutes()
	n.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	n.services = []ServiceRunner{root, assetSvc, creditSvc, accountSvc, projectorSvc, reconcilerSvc}
	return n, nil
}

func (n *node) start(ctx context.Context) error {
	for _, svc := range n.services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

func (n *node) stop() {
	for i := len(n.services) - 1; i >= 0; i-- {
		_ = n.services[i].Stop()
	}
	for _, c := range n.closers {
		_ = c.Close()
	}
}
