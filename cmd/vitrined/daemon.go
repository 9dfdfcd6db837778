package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"vitrine/config"
	"vitrine/core/events"
	"vitrine/gateway/middleware"
	"vitrine/gateway/routes"
	"vitrine/integrations/audit"
	"vitrine/integrations/webhooks"
	"vitrine/native/common"
	"vitrine/native/market"
	"vitrine/observability"
	"vitrine/rpc"
	"vitrine/services/contentstore"
	"vitrine/services/payments"
	"vitrine/services/persona"
	"vitrine/state"
	"vitrine/storage"
)

// daemon owns every long-lived component of a running marketplace node.
type daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	market    *market.Marketplace
	rail      *payments.MemoryRail
	pauses    *common.Pauses
	bus       *events.Bus
	content   contentstore.Store
	snapshots *state.SnapshotStore
	handler   http.Handler

	closers  []io.Closer
	closeFns []func()

	snapMu sync.Mutex
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newDaemon opens storage, restores or seeds the marketplace and builds the
// HTTP surface. The caller must Close the daemon.
func newDaemon(ctx context.Context, cfg *config.Config, seedPath string, logger *slog.Logger) (*daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runtime, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}
	d := &daemon{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	d.closers = append(d.closers, closerFunc(func() error { db.Close(); return nil }))
	d.snapshots = state.NewSnapshotStore(state.NewManager(db), cfg.Market.SnapshotRetention)

	d.market = market.NewWithDefaults(runtime.Market, runtime.Identity, runtime.Affiliate)
	d.market.SetLogger(logger)
	d.market.SetLockTimeout(runtime.Market.LockTimeout)
	d.pauses = common.NewPauses(cfg.Pauses.PauseMap())
	d.market.SetPauses(d.pauses)
	d.rail = payments.NewMemoryRail(cfg.Market.StrictRail)
	d.market.SetRail(d.rail)

	if err := d.openContentStore(); err != nil {
		return nil, err
	}

	emitters, err := d.openConsumers()
	if err != nil {
		return nil, err
	}

	restored, err := d.restore(ctx)
	if err != nil {
		return nil, err
	}
	// Consumers are attached after restore so replayed state does not
	// produce duplicate deliveries.
	d.market.SetEmitter(emitters)

	if !restored && strings.TrimSpace(seedPath) != "" {
		seed, err := loadSeed(seedPath)
		if err != nil {
			return nil, err
		}
		if err := applySeed(ctx, d.market, d.rail, d.content, seed); err != nil {
			return nil, err
		}
		logger.Info("seed applied", slog.String("path", seedPath),
			slog.Int("products", len(seed.Products)), slog.Int("credits", len(seed.Credits)))
	}

	d.handler = d.buildHandler()
	ok = true
	return d, nil
}

func (d *daemon) openContentStore() error {
	cs := d.cfg.ContentStore
	var (
		next    contentstore.Store
		backend = strings.ToLower(strings.TrimSpace(cs.Backend))
	)
	switch backend {
	case "", "bolt":
		backend = "bolt"
		store, err := contentstore.OpenBolt(d.cfg.ResolvePath(cs.Path), &bolt.Options{Timeout: time.Second})
		if err != nil {
			return fmt.Errorf("open content store: %w", err)
		}
		d.closers = append(d.closers, store)
		next = store
	case "http":
		store, err := contentstore.NewHTTPStore(cs.GatewayURL, contentstore.GatewayCredentials{
			Territory: cs.Territory,
			Account:   cs.Account,
			Message:   strings.TrimSpace(os.Getenv("VITRINE_GATEWAY_MESSAGE")),
			Signature: strings.TrimSpace(os.Getenv("VITRINE_GATEWAY_SIGNATURE")),
		}, nil)
		if err != nil {
			return err
		}
		next = store
	default:
		return fmt.Errorf("content store: unknown backend %q", cs.Backend)
	}
	d.content = contentstore.NewCached(next, backend, cs.CacheTTL(), cs.CacheEntries)
	return nil
}

// openConsumers builds the event fanout: metrics, websocket bus, audit trail
// and webhooks, the last two only when configured.
func (d *daemon) openConsumers() (events.Emitter, error) {
	d.bus = events.NewBus()
	fan := events.Fanout{observability.Events(), d.bus}

	if dsn := strings.TrimSpace(d.cfg.Audit.DSN); dsn != "" {
		db, err := audit.Open(d.cfg.Audit.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		store := audit.NewStore(db, d.logger.With(slog.String("component", "audit")))
		d.closeFns = append(d.closeFns, store.Close)
		fan = append(fan, store)
	}

	if url := strings.TrimSpace(d.cfg.Webhook.URL); url != "" {
		dispatcher, err := webhooks.NewDispatcher(url, config.Secret(d.cfg.Webhook.SecretEnv),
			webhooks.WithTopics(d.cfg.Webhook.Topics...),
			webhooks.WithRateLimit(d.cfg.Webhook.RateLimitPerMinute),
			webhooks.WithLogger(d.logger.With(slog.String("component", "webhooks"))))
		if err != nil {
			return nil, err
		}
		d.closeFns = append(d.closeFns, func() {
			dispatcher.Close()
			if dropped := dispatcher.Dropped() + dispatcher.Throttled(); dropped > 0 {
				observability.Events().RecordDropped(dropped)
			}
		})
		fan = append(fan, dispatcher)
	}
	return fan, nil
}

func (d *daemon) restore(ctx context.Context) (bool, error) {
	snap, found, err := d.snapshots.Latest()
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return false, nil
	}
	if err := d.market.Restore(ctx, snap); err != nil {
		return false, err
	}
	if err := d.market.Ledger().Verify(); err != nil {
		return false, fmt.Errorf("restored ledger: %w", err)
	}
	d.logger.Info("marketplace restored", slog.Uint64("sequence", snap.Sequence), slog.Int("railAccounts", len(snap.Rail)))
	return true, nil
}

func (d *daemon) buildHandler() http.Handler {
	server := rpc.NewServer(rpc.Config{
		Market:     d.market,
		Processor:  persona.NewDocumentProcessor(d.content),
		Content:    d.content,
		Bus:        d.bus,
		Pauses:     d.pauses,
		AdminScope: d.cfg.Auth.AdminScope,
		Logger:     d.logger.With(slog.String("component", "rpc")),
	})
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        !d.cfg.Auth.Optional,
		HMACSecret:     config.Secret(d.cfg.Auth.HMACSecretEnv),
		Issuer:         d.cfg.Auth.Issuer,
		Audience:       d.cfg.Auth.Audience,
		AllowAnonymous: true,
	}, d.logger)
	var limiter *middleware.RateLimiter
	if d.cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerSecond: d.cfg.RateLimit.RequestsPerSecond,
			Burst:             d.cfg.RateLimit.Burst,
		}, d.logger)
	}
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		MetricsPrefix: "vitrine_http",
		LogRequests:   d.cfg.Log.SlogLevel() <= slog.LevelDebug,
		Enabled:       true,
	}, d.logger)
	return routes.New(routes.Config{
		RPCHandler:    server.Handler(),
		EventsHandler: server.EventsHandler(),
		HealthHandler: http.HandlerFunc(d.handleHealth),
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			MaxAge:         10 * time.Minute,
		},
	})
}

func (d *daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := d.market.Ledger().Verify(); err != nil {
		http.Error(w, "ledger conservation violated", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// snapshot verifies the ledger and persists a consistent marketplace
// snapshot. A conservation failure panics.
func (d *daemon) snapshot(ctx context.Context) (*market.Snapshot, error) {
	d.snapMu.Lock()
	defer d.snapMu.Unlock()
	d.market.Ledger().MustVerify()
	snap, err := d.market.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.snapshots.Save(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// runSnapshots takes a snapshot every interval until ctx is done.
func (d *daemon) runSnapshots(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := d.snapshot(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					d.logger.Warn("periodic snapshot failed", slog.Any("error", err))
				}
				continue
			}
			d.logger.Debug("snapshot saved", slog.Uint64("sequence", snap.Sequence))
		}
	}
}

// Close stops consumers and releases storage in reverse open order.
func (d *daemon) Close() {
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		d.closeFns[i]()
	}
	d.closeFns = nil
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	d.closers = nil
}
