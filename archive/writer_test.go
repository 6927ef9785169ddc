package archive_test

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mnemoria-ai/mnemoria-go/archive"
	"github.com/mnemoria-ai/mnemoria-go/core"
)

func event(texts ...string) []core.Message {
	messages := make([]core.Message, 0, len(texts))
	for i, text := range texts {
		role := core.RoleHuman
		if i%2 == 1 {
			role = core.RoleAI
		}
		messages = append(messages, core.NewMessage(role, text))
	}
	return messages
}

func TestWriteShardCreatesShardAndAppendLog(t *testing.T) {
	root := t.TempDir()
	store := archive.NewStore(root)
	ts := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)

	if err := store.WriteShard("Zero", "uid-1", ts, event("hello", "hi")); err != nil {
		t.Fatalf("WriteShard: %v", err)
	}

	shard := filepath.Join(root, "archive", "Zero", "session_20260828_143000_uid-1.json.gz")
	f, err := os.Open(shard)
	if err != nil {
		t.Fatalf("shard missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("shard not gzip: %v", err)
	}
	var messages []core.Message
	if err := json.NewDecoder(zr).Decode(&messages); err != nil {
		t.Fatalf("decode shard: %v", err)
	}
	if len(messages) != 2 || messages[0].Content.FlatText() != "hello" {
		t.Errorf("unexpected shard contents: %+v", messages)
	}

	logPath := filepath.Join(root, "archive", "Zero", "day", "append_Zero_20260828.ndjson.gz")
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("append log missing: %v", err)
	}
}

func TestAppendLogAccumulatesRecords(t *testing.T) {
	root := t.TempDir()
	store := archive.NewStore(root)
	ts := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	for _, uid := range []string{"uid-a", "uid-b", "uid-c"} {
		if err := store.WriteShard("Zero", uid, ts, event("msg for "+uid)); err != nil {
			t.Fatalf("WriteShard %s: %v", uid, err)
		}
		ts = ts.Add(time.Minute)
	}

	// Each append is its own gzip member; one reader sees the whole
	// stream.
	logPath := filepath.Join(root, "archive", "Zero", "day", "append_Zero_20260828.ndjson.gz")
	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("open append log: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}

	var uids []string
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var record struct {
			UID string `json:"uid"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		uids = append(uids, record.UID)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan append log: %v", err)
	}

	if strings.Join(uids, ",") != "uid-a,uid-b,uid-c" {
		t.Errorf("append order = %v", uids)
	}
}
