package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MonitorConfig tunes a Monitor.
type MonitorConfig struct {
	// Interval between probes.
	Interval time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
}

// Monitor derives reachability from a periodic probe, typically a
// lightweight read against the backend. It embeds a Manual signal, so
// subscribers hear transitions only when a probe result disagrees
// with the current state.
type Monitor struct {
	*Manual
	probe    func(context.Context) error
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor builds a Monitor around probe. The signal starts online;
// the first probe corrects it if the backend is already gone.
func NewMonitor(probe func(context.Context) error, cfg MonitorConfig, log zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Monitor{
		Manual:   NewManual(true),
		probe:    probe,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start probes once immediately, then on every tick until Stop.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) run() {
	defer close(m.done)
	m.check()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.probe(ctx)
	online := err == nil
	if online != m.Online() {
		if online {
			m.log.Info().Msg("connectivity restored")
		} else {
			m.log.Warn().Err(err).Msg("connectivity lost")
		}
	}
	m.Set(online)
}

// Stop ends probing and waits for the loop to exit. Call only after
// Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
