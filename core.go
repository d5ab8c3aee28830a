// Package csmkit is the client-side core of the contractor safety
// management app: cached, circuit-broken access to the remote document
// store, assessment scoring with risk levels, debounced auto-save, and
// a durable offline write queue that drains when connectivity returns.
package csmkit

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/csmkit/cache"
	"github.com/briangreenhill/csmkit/connectivity"
	"github.com/briangreenhill/csmkit/csm"
	"github.com/briangreenhill/csmkit/internal/config"
	"github.com/briangreenhill/csmkit/notify"
	"github.com/briangreenhill/csmkit/offline"
	"github.com/briangreenhill/csmkit/resilience"
	"github.com/briangreenhill/csmkit/store"
)

// Options configures New. Remote is the only required field; everything
// else has a working default.
type Options struct {
	// Remote is the backing document store (the Firestore adapter in
	// production, a MemStore in tests and the demo).
	Remote store.DocumentStore

	// Config tunes the pipeline. Nil loads from the environment.
	Config *config.Config

	// Logger receives structured logs. The zero value discards them.
	Logger zerolog.Logger

	// Signal reports connectivity. Nil means a manual signal that
	// starts online.
	Signal connectivity.Signal

	// Sink receives user-facing notifications. Nil logs them instead.
	Sink notify.Sink

	// Mailer delivers critical-failure escalations. Nil falls back to
	// SMTP when an admin address is configured, otherwise log-only.
	Mailer notify.Mailer
}

// Core owns the wired pipeline: resilient store, offline sync, scoring
// service, and failure reporting. Create with New, release with Close.
type Core struct {
	cfg      *config.Config
	log      zerolog.Logger
	cache    *cache.Cache
	breaker  *resilience.Breaker
	store    *store.Resilient
	journal  *offline.Journal
	sync     *offline.Coordinator
	service  *csm.Service
	reporter *notify.Reporter
	signal   connectivity.Signal
}

// New wires the pipeline: reads go remote → breaker+retry → TTL cache,
// writes go shape check → breaker+retry → cache invalidation, with the
// offline coordinator in front of the write path. The background sync
// loop is already started on return.
func New(opts Options) (*Core, error) {
	if opts.Remote == nil {
		return nil, errors.New("csmkit: Options.Remote is required")
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger

	signal := opts.Signal
	if signal == nil {
		signal = connectivity.NewManual(true)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.RetryAttempts
	retry.Delay = cfg.RetryDelay

	c := cache.New("csm")
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "store",
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}, log)

	shapes := store.NewRegistry()
	csm.RegisterShapes(shapes)

	resilient := store.NewResilient(opts.Remote, c, breaker, shapes,
		store.WithCacheTTL(cfg.CacheTTL),
		store.WithRetry(retry),
		store.WithLogger(log),
	)

	journal, err := offline.OpenJournal(offline.JournalConfig{
		Path:     cfg.QueuePath,
		InMemory: cfg.QueuePath == "",
	}, log)
	if err != nil {
		return nil, err
	}

	sync := offline.NewCoordinator(offline.CoordinatorConfig{
		SyncInterval: cfg.SyncInterval,
	}, resilient, journal, signal, log)
	sync.Start()

	service := csm.NewService(resilient, sync,
		csm.WithScoreConfig(csm.ScoreConfig{
			MaxScorePerQuestion: float64(cfg.MaxScorePerQuestion),
			Clamp:               true,
		}),
		csm.WithSessionDelay(cfg.AutosaveDelay),
		csm.WithLogger(log),
	)

	sink := opts.Sink
	if sink == nil {
		sink = notify.LogSink{Log: log}
	}
	mailer := opts.Mailer
	if mailer == nil && cfg.AdminEmail != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom)
	}
	reporter := notify.NewReporter(sink, mailer, cfg.AdminEmail, log)

	return &Core{
		cfg:      cfg,
		log:      log,
		cache:    c,
		breaker:  breaker,
		store:    resilient,
		journal:  journal,
		sync:     sync,
		service:  service,
		reporter: reporter,
		signal:   signal,
	}, nil
}

// Service exposes assessment operations: vendors, forms, start, save,
// finish, summaries, and editing sessions.
func (c *Core) Service() *csm.Service { return c.service }

// Reporter exposes user-facing failure reporting and escalation.
func (c *Core) Reporter() *notify.Reporter { return c.reporter }

// Sync exposes the offline queue: pending count, manual flush, kick.
func (c *Core) Sync() *offline.Coordinator { return c.sync }

// Store exposes the resilient document store for reads outside the
// assessment service.
func (c *Core) Store() *store.Resilient { return c.store }

// Breaker exposes the shared circuit breaker, mainly for health views.
func (c *Core) Breaker() *resilience.Breaker { return c.breaker }

// Signal returns the connectivity signal the pipeline follows.
func (c *Core) Signal() connectivity.Signal { return c.signal }

// Close stops the sync loop and releases the journal. Queued writes
// survive in the on-disk journal; with an in-memory journal they are
// lost.
func (c *Core) Close() error {
	c.sync.Close()
	return c.journal.Close()
}
