package archive

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mnemoria-ai/mnemoria-go/core"
)

// ErrNothingToMerge is returned by MergeByDay when the day has no
// shards and no append-log records. Re-running a merge after shards
// were already compacted and deleted lands here, which makes the merge
// safe to call repeatedly.
var ErrNothingToMerge = errors.New("archive: nothing to merge")

// MergeOptions controls one merge-by-day run.
type MergeOptions struct {
	// Compress writes merged_<id>_<date>.json.gz instead of plain JSON.
	Compress bool

	// DeleteShards removes the consumed shard files and the day's
	// append log after the merged file is written.
	DeleteShards bool
}

// MergeResult reports what a merge produced.
type MergeResult struct {
	// Output is the path of the merged archive file.
	Output string

	// Sessions is the number of shard files and append-log records
	// folded into the merge.
	Sessions int

	// Messages is the total message count in the merged file,
	// including the synthetic session-boundary markers.
	Messages int
}

// MergeByDay folds every shard and append-log record for one identity
// and one date (YYYYMMDD) into a single daily archive. Shards are
// sorted by filename, which embeds a zero-padded timestamp, so the
// merged sequence is chronological. Every consumed source contributes
// a synthetic system message "session boundary: <source>" ahead of its
// messages.
//
// Shards and log records are unioned, not paired: any combination of
// (shard present, record present) is tolerated, including both, which
// duplicates that event's messages in the merged output.
//
// Unreadable sources are logged and skipped; the merge proceeds with
// whatever is readable.
func (s *Store) MergeByDay(identity, date string, opts MergeOptions) (*MergeResult, error) {
	shards, err := s.dayShards(identity, date)
	if err != nil {
		return nil, err
	}
	records := s.dayRecords(identity, date)

	if len(shards) == 0 && len(records) == 0 {
		return nil, ErrNothingToMerge
	}

	var merged []core.Message
	sessions := 0

	for _, path := range shards {
		messages, err := readShard(path)
		if err != nil {
			log.Warn().Err(err).Str("shard", path).Msg("skipping unreadable shard")
			continue
		}
		merged = append(merged, core.SystemMessage("session boundary: "+filepath.Base(path)))
		merged = append(merged, messages...)
		sessions++
	}

	logName := filepath.Base(s.appendLogPath(identity, date))
	for _, record := range records {
		merged = append(merged, core.SystemMessage(fmt.Sprintf("session boundary: %s#%s", logName, record.UID)))
		merged = append(merged, record.Messages...)
		sessions++
	}

	if sessions == 0 {
		// Sources existed but none were readable; nothing worth writing.
		return nil, ErrNothingToMerge
	}

	out := s.mergedPath(identity, date, opts.Compress)
	if err := writeMerged(out, merged, opts.Compress); err != nil {
		return nil, err
	}

	if opts.DeleteShards {
		s.deleteDaySources(identity, date, shards)
	}

	log.Info().
		Str("identity", identity).
		Str("date", date).
		Str("output", out).
		Int("sessions", sessions).
		Int("messages", len(merged)).
		Msg("day merged")

	return &MergeResult{Output: out, Sessions: sessions, Messages: len(merged)}, nil
}

// dayShards lists the identity's shard files for one date, compressed
// and uncompressed forms both, sorted by filename for chronological
// order.
func (s *Store) dayShards(identity, date string) ([]string, error) {
	dir := s.identityDir(identity)
	prefix := filepath.Join(dir, "session_"+date+"_*")

	plain, err := filepath.Glob(prefix + ".json")
	if err != nil {
		return nil, fmt.Errorf("archive: glob shards: %w", err)
	}
	compressed, err := filepath.Glob(prefix + ".json.gz")
	if err != nil {
		return nil, fmt.Errorf("archive: glob shards: %w", err)
	}

	shards := append(plain, compressed...)
	sort.Slice(shards, func(i, j int) bool {
		return filepath.Base(shards[i]) < filepath.Base(shards[j])
	})
	return shards, nil
}

// dayRecords reads every append-log record for the date. A missing log
// is an empty day; a corrupt line is logged and skipped.
func (s *Store) dayRecords(identity, date string) []appendRecord {
	path := s.appendLogPath(identity, date)
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("log", path).Msg("append log unreadable")
		}
		return nil
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		log.Warn().Err(err).Str("log", path).Msg("append log corrupt")
		return nil
	}
	defer zr.Close()

	var records []appendRecord
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record appendRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			log.Warn().Err(err).Str("log", path).Msg("skipping corrupt append record")
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Str("log", path).Msg("append log truncated")
	}
	return records
}

// appendLogStats returns the on-disk size and record count of the
// day's append log. A missing log reports zeros.
func (s *Store) appendLogStats(identity, date string) (sizeBytes int64, lines int) {
	path := s.appendLogPath(identity, date)
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0
	}
	return info.Size(), len(s.dayRecords(identity, date))
}

// identities lists the identity directories under the archive root.
func (s *Store) identities() []string {
	entries, err := os.ReadDir(filepath.Join(s.root, "archive"))
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids
}

func readShard(path string) ([]core.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open shard: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("archive: decompress shard: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var messages []core.Message
	if err := json.NewDecoder(r).Decode(&messages); err != nil {
		return nil, fmt.Errorf("archive: decode shard: %w", err)
	}
	return messages, nil
}

func writeMerged(path string, messages []core.Message, compress bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: create merged %s: %w", path, err)
	}
	defer f.Close()

	if compress {
		zw := gzip.NewWriter(f)
		if err := json.NewEncoder(zw).Encode(messages); err != nil {
			zw.Close()
			return fmt.Errorf("archive: encode merged %s: %w", path, err)
		}
		return zw.Close()
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(messages); err != nil {
		return fmt.Errorf("archive: encode merged %s: %w", path, err)
	}
	return nil
}

// deleteDaySources removes the merged day's shard files and append
// log. Failures are logged; a leftover source only means the next merge
// re-reads it.
func (s *Store) deleteDaySources(identity, date string, shards []string) {
	for _, path := range shards {
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("shard", path).Msg("shard not deleted after merge")
		}
	}
	logPath := s.appendLogPath(identity, date)
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("log", logPath).Msg("append log not deleted after merge")
	}
}
