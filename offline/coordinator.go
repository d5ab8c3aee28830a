package offline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/csmkit/connectivity"
	"github.com/briangreenhill/csmkit/fault"
	"github.com/briangreenhill/csmkit/store"
)

// CoordinatorConfig tunes the sync loop.
type CoordinatorConfig struct {
	// SyncInterval is the cadence of background flush attempts.
	SyncInterval time.Duration
	// FlushBatch caps how many queued writes one journal read loads.
	FlushBatch int
}

// Coordinator routes writes by connectivity. Online writes go straight
// to the backend; offline writes, and online writes that fail for a
// transient reason, land in the journal. A background loop drains the
// journal on a timer and immediately when connectivity returns.
//
// Coordinator implements store.Writer, so it slots in as a service's
// write path without the service knowing about connectivity at all.
type Coordinator struct {
	writer   store.Writer
	journal  *Journal
	signal   connectivity.Signal
	log      zerolog.Logger
	interval time.Duration
	batch    int

	unsubscribe func()
	kick        chan struct{}
	stop        chan struct{}
	done        chan struct{}

	started  atomic.Bool
	stopOnce sync.Once

	// flushMu keeps replays single file so queued order holds.
	flushMu sync.Mutex
}

// NewCoordinator wires a coordinator. It subscribes to the signal at
// once, so a reconnect that happens before Start still triggers the
// first flush.
func NewCoordinator(cfg CoordinatorConfig, writer store.Writer, journal *Journal, signal connectivity.Signal, log zerolog.Logger) *Coordinator {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = 64
	}
	c := &Coordinator{
		writer:   writer,
		journal:  journal,
		signal:   signal,
		log:      log,
		interval: cfg.SyncInterval,
		batch:    cfg.FlushBatch,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	queueDepth.Set(float64(journal.Len()))
	c.unsubscribe = signal.Subscribe(func(online bool) {
		if online {
			c.Kick()
		}
	})
	return c
}

// Update implements store.Writer.
func (c *Coordinator) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	ops := []store.WriteOp{{Kind: store.OpUpdate, Collection: collection, ID: id, Patch: patch}}
	return c.dispatch(ctx, ops, func(ctx context.Context) error {
		return c.writer.Update(ctx, collection, id, patch)
	})
}

// Delete implements store.Writer.
func (c *Coordinator) Delete(ctx context.Context, collection, id string) error {
	ops := []store.WriteOp{{Kind: store.OpDelete, Collection: collection, ID: id}}
	return c.dispatch(ctx, ops, func(ctx context.Context) error {
		return c.writer.Delete(ctx, collection, id)
	})
}

// BatchWrite implements store.Writer. A queued batch replays as one
// batch, so its atomicity survives the detour.
func (c *Coordinator) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	return c.dispatch(ctx, ops, func(ctx context.Context) error {
		return c.writer.BatchWrite(ctx, ops)
	})
}

// dispatch sends the write now when online and queues it when offline
// or when the send fails for a transient reason. A queued write
// returns nil: it is accepted, not yet synced.
func (c *Coordinator) dispatch(ctx context.Context, ops []store.WriteOp, send func(context.Context) error) error {
	if !c.signal.Online() {
		return c.enqueue(ops)
	}
	err := send(ctx)
	switch {
	case err == nil:
		return nil
	case fault.Retryable(err) || fault.HasCode(err, fault.CodeCircuitOpen):
		c.log.Warn().
			Str("code", string(fault.CodeOf(err))).
			Err(err).
			Msg("write queued after send failure")
		return c.enqueue(ops)
	default:
		return err
	}
}

func (c *Coordinator) enqueue(ops []store.WriteOp) error {
	if err := c.journal.Append(ops); err != nil {
		return err
	}
	pending := c.journal.Len()
	queueDepth.Set(float64(pending))
	c.log.Debug().Int("ops", len(ops)).Int("pending", pending).Msg("write queued")
	return nil
}

// Flush replays queued writes oldest-first. A transient failure stops
// the flush and keeps the entry queued; an entry the backend rejects
// outright is dropped so it cannot wedge the queue. Flush returns the
// number of entries it removed from the queue.
func (c *Coordinator) Flush(ctx context.Context) (int, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	processed := 0
	for {
		entries, err := c.journal.Oldest(c.batch)
		if err != nil {
			return processed, err
		}
		if len(entries) == 0 {
			return processed, nil
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if err := c.replay(ctx, e); err != nil {
				return processed, err
			}
			processed++
		}
	}
}

func (c *Coordinator) replay(ctx context.Context, e Entry) error {
	err := c.writer.BatchWrite(ctx, e.Ops)
	switch {
	case err == nil:
		syncedTotal.Inc()
	case fault.Retryable(err) || fault.HasCode(err, fault.CodeCircuitOpen):
		return err
	default:
		// The backend rejected the write for good: validation,
		// permissions, a conflict, a vanished document. Replaying it
		// again can only fail the same way.
		c.log.Error().
			Str("code", string(fault.CodeOf(err))).
			Err(err).
			Msg("dropping unsyncable queued write")
		droppedTotal.Inc()
	}
	if err := c.journal.Remove(e.Key); err != nil {
		return err
	}
	queueDepth.Set(float64(c.journal.Len()))
	return nil
}

// Start launches the background sync loop.
func (c *Coordinator) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run()
}

func (c *Coordinator) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		case <-c.kick:
		}
		if !c.signal.Online() || c.journal.Len() == 0 {
			continue
		}
		n, err := c.Flush(context.Background())
		if err != nil {
			c.log.Warn().
				Err(err).
				Int("synced", n).
				Int("pending", c.journal.Len()).
				Msg("sync incomplete")
			continue
		}
		if n > 0 {
			c.log.Info().Int("synced", n).Msg("offline queue drained")
		}
	}
}

// Kick requests an immediate background flush. It never blocks; a
// pending kick is enough.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// PendingSync is the number of writes still waiting to reach the
// backend.
func (c *Coordinator) PendingSync() int { return c.journal.Len() }

// Online reports the connectivity signal's current state.
func (c *Coordinator) Online() bool { return c.signal.Online() }

// Close stops the sync loop and unsubscribes from the signal. The
// journal stays open; its owner closes it.
func (c *Coordinator) Close() {
	c.unsubscribe()
	if !c.started.Load() {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}
