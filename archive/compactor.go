package archive

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Compactor is the background compaction scheduler. It polls the
// archive on a configurable interval and, inside the configured daily
// window, merges the current day of any identity whose append log has
// outgrown the line or size thresholds.
//
// The compactor is the only writer of merged files and the only deleter
// of shards, and the shard writer is the only creator of shards, so the
// archive tree needs no file locks.
type Compactor struct {
	store *Store
	cfg   *ConfigStore

	// now is a test seam for the time-of-day gate.
	now func() time.Time
}

// NewCompactor creates a scheduler over the given archive store and
// configuration.
func NewCompactor(store *Store, cfg *ConfigStore) *Compactor {
	return &Compactor{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Run loops until ctx is cancelled, sleeping the configured interval
// between iterations. Iteration failures are logged, never fatal; the
// loop re-reads the configuration each pass so runtime updates are
// picked up on the next iteration.
func (c *Compactor) Run(ctx context.Context) {
	log.Info().Msg("compaction scheduler started")
	for {
		cfg := c.cfg.Get()
		select {
		case <-ctx.Done():
			log.Info().Msg("compaction scheduler stopped")
			return
		case <-time.After(time.Duration(cfg.IntervalSec) * time.Second):
		}

		if !c.eligible(cfg) {
			continue
		}
		c.Sweep()
	}
}

// eligible applies the enabled flag and the time-of-day window.
func (c *Compactor) eligible(cfg Config) bool {
	return cfg.Enabled && withinWindow(c.now().Hour(), cfg.StartHour, cfg.EndHour)
}

// withinWindow reports whether hour falls in [start, end), wrapping
// past midnight when start > end.
func withinWindow(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Sweep runs one compaction pass: for every identity, check the
// current day's append log against the thresholds and merge when
// either is exceeded. Per-identity failures are logged and do not stop
// the pass.
func (c *Compactor) Sweep() {
	cfg := c.cfg.Get()
	date := c.now().Format(dayLayout)

	for _, identity := range c.store.identities() {
		size, lines := c.store.appendLogStats(identity, date)
		if lines == 0 {
			continue
		}
		overSize := float64(size) > cfg.MaxSizeMB*1024*1024
		overLines := lines > cfg.MaxLines
		if !overSize && !overLines {
			continue
		}

		log.Info().
			Str("identity", identity).
			Str("date", date).
			Int64("log_bytes", size).
			Int("log_lines", lines).
			Msg("append log over threshold, compacting")

		_, err := c.store.MergeByDay(identity, date, MergeOptions{
			Compress:     true,
			DeleteShards: cfg.DeleteShards,
		})
		if err != nil && !errors.Is(err, ErrNothingToMerge) {
			log.Error().Err(err).Str("identity", identity).Str("date", date).Msg("compaction merge failed")
		}
	}
}
