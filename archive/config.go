package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds the compaction knobs an operator can tune at runtime.
// The scheduler reads a fresh snapshot every iteration, so updates take
// effect on the next poll rather than instantaneously.
type Config struct {
	// Enabled toggles the background compaction loop.
	Enabled bool `yaml:"enabled"`

	// MaxLines triggers a merge once the day's append log holds more
	// records than this.
	MaxLines int `yaml:"max_lines"`

	// MaxSizeMB triggers a merge once the day's append log exceeds this
	// many megabytes on disk.
	MaxSizeMB float64 `yaml:"max_size_mb"`

	// IntervalSec is the sleep between scheduler iterations.
	IntervalSec int `yaml:"interval_sec"`

	// DeleteShards removes the per-event shard files and the append log
	// after a successful merge.
	DeleteShards bool `yaml:"delete_shards"`

	// StartHour/EndHour bound the daily window [StartHour, EndHour) in
	// which compaction may run. StartHour > EndHour means the window
	// wraps past midnight (22,6 covers 22:00-06:00).
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// DefaultConfig is the compaction configuration used when none has been
// persisted yet.
var DefaultConfig = Config{
	Enabled:      true,
	MaxLines:     1000,
	MaxSizeMB:    4,
	IntervalSec:  180,
	DeleteShards: false,
	StartHour:    2,
	EndHour:      5,
}

// ConfigFileName is the compaction config file inside the store root.
const ConfigFileName = "compaction.yaml"

// ConfigStore is the process-wide mutable compaction configuration,
// persisted as YAML next to the archive tree. Safe for concurrent use:
// the scheduler snapshots it every iteration while the administrative
// surface updates it.
type ConfigStore struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// LoadConfigStore reads the persisted configuration from root, falling
// back to DefaultConfig when no file exists or it cannot be parsed.
func LoadConfigStore(root string) *ConfigStore {
	s := &ConfigStore{
		path: filepath.Join(root, ConfigFileName),
		cfg:  DefaultConfig,
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("compaction config unreadable, using defaults")
		}
		return s
	}

	cfg := DefaultConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("compaction config corrupt, using defaults")
		return s
	}
	s.cfg = cfg.sanitized()
	return s
}

// Get returns a snapshot of the current configuration.
func (s *ConfigStore) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set applies cfg and persists it. The in-memory value takes effect for
// the rest of the process lifetime even when persistence fails; the
// write error is returned so the administrative caller can surface it.
func (s *ConfigStore) Set(cfg Config) error {
	cfg = cfg.sanitized()

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("archive: marshal compaction config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("compaction config not persisted")
		return fmt.Errorf("archive: persist compaction config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("compaction config not persisted")
		return fmt.Errorf("archive: persist compaction config: %w", err)
	}
	return nil
}

// sanitized clamps nonsense values back to usable ones.
func (c Config) sanitized() Config {
	if c.MaxLines <= 0 {
		c.MaxLines = DefaultConfig.MaxLines
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultConfig.MaxSizeMB
	}
	if c.IntervalSec <= 0 {
		c.IntervalSec = DefaultConfig.IntervalSec
	}
	c.StartHour = clampHour(c.StartHour)
	c.EndHour = clampHour(c.EndHour)
	return c
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}
