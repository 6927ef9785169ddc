package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mnemoria-ai/mnemoria-go/archive"
)

func TestLoadConfigStoreDefaults(t *testing.T) {
	cs := archive.LoadConfigStore(t.TempDir())
	if got := cs.Get(); got != archive.DefaultConfig {
		t.Errorf("missing file config = %+v, want defaults", got)
	}
}

func TestConfigStoreSetPersists(t *testing.T) {
	root := t.TempDir()
	cs := archive.LoadConfigStore(root)

	cfg := cs.Get()
	cfg.MaxLines = 50
	cfg.StartHour = 22
	cfg.EndHour = 6
	cfg.DeleteShards = true
	if err := cs.Set(cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got := cs.Get(); got.MaxLines != 50 || !got.DeleteShards {
		t.Errorf("in-memory config = %+v", got)
	}

	// A fresh load reads the persisted values back.
	reloaded := archive.LoadConfigStore(root).Get()
	if reloaded.MaxLines != 50 || reloaded.StartHour != 22 || reloaded.EndHour != 6 {
		t.Errorf("reloaded config = %+v", reloaded)
	}
}

func TestLoadConfigStoreCorruptFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, archive.ConfigFileName)
	if err := os.WriteFile(path, []byte("{{{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := archive.LoadConfigStore(root).Get(); got != archive.DefaultConfig {
		t.Errorf("corrupt file config = %+v, want defaults", got)
	}
}

func TestConfigStoreSanitizes(t *testing.T) {
	cs := archive.LoadConfigStore(t.TempDir())

	cfg := cs.Get()
	cfg.MaxLines = -1
	cfg.IntervalSec = 0
	cfg.StartHour = 99
	if err := cs.Set(cfg); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got := cs.Get()
	if got.MaxLines != archive.DefaultConfig.MaxLines {
		t.Errorf("MaxLines = %d", got.MaxLines)
	}
	if got.IntervalSec != archive.DefaultConfig.IntervalSec {
		t.Errorf("IntervalSec = %d", got.IntervalSec)
	}
	if got.StartHour != 23 {
		t.Errorf("StartHour = %d", got.StartHour)
	}
}
