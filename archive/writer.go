package archive

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mnemoria-ai/mnemoria-go/core"
)

// Store is the on-disk archive for dialogue events, rooted at a
// memory-store directory. Per identity <id> it maintains:
//
//	archive/<id>/session_<YYYYMMDD_HHMMSS>_<uid>.json.gz   one shard per event
//	archive/<id>/day/append_<id>_<YYYYMMDD>.ndjson.gz      per-day append log
//	archive/<id>/day/merged_<id>_<YYYYMMDD>.json[.gz]      compacted day
//
// Shards and append-log records are deliberately redundant: the shard is
// the immutable per-event capture, the log is the low-latency buffer the
// compactor reads without opening many small files. The two writes are
// independent and best-effort, never transactional.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the memory-store directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the memory-store root directory.
func (s *Store) Root() string {
	return s.root
}

const (
	shardTimeLayout = "20060102_150405"
	dayLayout       = "20060102"
)

// appendRecord is one line of the per-day append log.
type appendRecord struct {
	UID       string         `json:"uid"`
	Timestamp string         `json:"timestamp"`
	Messages  []core.Message `json:"messages"`
}

// WriteShard persists one ingested event: a compressed shard file plus
// one compressed line in the day's append log. Either write may fail
// without preventing the other; the joined error reports what went
// wrong.
func (s *Store) WriteShard(identity, uid string, ts time.Time, messages []core.Message) error {
	shardErr := s.writeShardFile(identity, uid, ts, messages)
	if shardErr != nil {
		log.Warn().Err(shardErr).Str("identity", identity).Str("uid", uid).Msg("shard write failed")
	}
	logErr := s.appendDayLog(identity, uid, ts, messages)
	if logErr != nil {
		log.Warn().Err(logErr).Str("identity", identity).Str("uid", uid).Msg("append-log write failed")
	}
	return errors.Join(shardErr, logErr)
}

func (s *Store) identityDir(identity string) string {
	return filepath.Join(s.root, "archive", identity)
}

func (s *Store) dayDir(identity string) string {
	return filepath.Join(s.identityDir(identity), "day")
}

func (s *Store) appendLogPath(identity, date string) string {
	return filepath.Join(s.dayDir(identity), fmt.Sprintf("append_%s_%s.ndjson.gz", identity, date))
}

func (s *Store) mergedPath(identity, date string, compress bool) string {
	name := fmt.Sprintf("merged_%s_%s.json", identity, date)
	if compress {
		name += ".gz"
	}
	return filepath.Join(s.dayDir(identity), name)
}

// writeShardFile writes the event's messages as one compressed,
// immutable file. The file is fully written and closed before anyone
// can glob it into a merge, so readers never observe a half shard.
func (s *Store) writeShardFile(identity, uid string, ts time.Time, messages []core.Message) error {
	dir := s.identityDir(identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: create %s: %w", dir, err)
	}

	name := fmt.Sprintf("session_%s_%s.json.gz", ts.Format(shardTimeLayout), uid)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create shard %s: %w", path, err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(messages); err != nil {
		zw.Close()
		return fmt.Errorf("archive: encode shard %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: close shard %s: %w", path, err)
	}

	log.Debug().Str("identity", identity).Str("shard", name).Msg("shard written")
	return nil
}

// appendDayLog appends one record to the identity's current-day log.
// Each record is its own gzip member; concatenated members decode as a
// single stream on read, so append mode needs no rewrite of the file.
func (s *Store) appendDayLog(identity, uid string, ts time.Time, messages []core.Message) error {
	dir := s.dayDir(identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: create %s: %w", dir, err)
	}

	path := s.appendLogPath(identity, ts.Format(dayLayout))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open append log %s: %w", path, err)
	}
	defer f.Close()

	record := appendRecord{
		UID:       uid,
		Timestamp: ts.Format(time.RFC3339),
		Messages:  messages,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: encode append record: %w", err)
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(append(line, '\n')); err != nil {
		zw.Close()
		return fmt.Errorf("archive: write append log %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: close append log %s: %w", path, err)
	}
	return nil
}
