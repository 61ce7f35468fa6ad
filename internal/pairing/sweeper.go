package pairing

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the sweeper purges expired sessions.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically calls Store.ExpireSessions on a cron schedule.
// Ticks never overlap: if a sweep is still running when the next tick fires,
// that tick is skipped.
type Sweeper struct {
	store     *Store
	interval  time.Duration
	onExpired func([]Session)
	logger    zerolog.Logger

	mu      sync.Mutex
	c       *cron.Cron
	running bool
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval between sweeps. Default: 60s. cron rounds it to whole seconds.
	Interval time.Duration

	// OnExpired is called with the sessions removed by a sweep, if any.
	OnExpired func([]Session)

	Logger zerolog.Logger
}

// NewSweeper creates a stopped sweeper for store.
func NewSweeper(store *Store, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:     store,
		interval:  cfg.Interval,
		onExpired: cfg.OnExpired,
		logger:    cfg.Logger,
	}
}

// Start schedules the sweep. Calling Start on a running sweeper is a no-op.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return
	}

	cronLog := cron.PrintfLogger(&sw.logger)
	sw.c = cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	sw.c.Schedule(cron.Every(sw.interval), cron.FuncJob(func() { sw.RunOnce() }))
	sw.c.Start()
	sw.running = true

	sw.logger.Debug().Dur("interval", sw.interval).Msg("pairing sweeper started")
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	c := sw.c
	sw.c = nil
	sw.running = false
	sw.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// IsRunning reports whether the sweeper is scheduled.
func (sw *Sweeper) IsRunning() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.running
}

// RunOnce performs a single sweep against the store's clock and returns
// the number of sessions removed.
func (sw *Sweeper) RunOnce() int {
	removed := sw.store.ExpireSessions(sw.store.Now())
	if len(removed) == 0 {
		return 0
	}

	sw.logger.Info().Int("removed", len(removed)).Msg("swept expired pairing sessions")
	if sw.onExpired != nil {
		sw.onExpired(removed)
	}
	return len(removed)
}
