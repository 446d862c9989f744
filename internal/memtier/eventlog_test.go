package memtier

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEventLogAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	log := NewEventLog(filepath.Join(dir, "events.jsonl"))

	e1 := NewEntry(Episodic, "first", "user-input")
	e2 := NewEntry(Episodic, "second", "user-input")

	if err := log.Append(NewEventRecord(e1)); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := log.Append(NewEventRecord(e2)); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	recs, err := log.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Entry.Content != "first" || recs[1].Entry.Content != "second" {
		t.Errorf("unexpected content order: %+v", recs)
	}
}

func TestEventLogLoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	log := NewEventLog(filepath.Join(dir, "missing.jsonl"))
	recs, err := log.Load()
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if recs != nil {
		t.Errorf("expected nil records, got %v", recs)
	}
}

func TestEventLogOverwriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	log := NewEventLog(path)

	e := NewEntry(Episodic, "original", "user-input")
	if err := log.Append(NewEventRecord(e)); err != nil {
		t.Fatalf("append: %v", err)
	}

	replacement := NewEntry(Episodic, "replacement", "user-input")
	if err := log.Overwrite([]EventRecord{NewEventRecord(replacement)}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be gone after successful overwrite")
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("expected backup file to exist: %v", err)
	}

	recs, err := log.Load()
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if len(recs) != 1 || recs[0].Entry.Content != "replacement" {
		t.Errorf("unexpected post-overwrite contents: %+v", recs)
	}
}

func TestEventLogBackupPreservesPriorContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	log := NewEventLog(path)

	e := NewEntry(Episodic, "before sleep", "user-input")
	if err := log.Append(NewEventRecord(e)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Backup(); err != nil {
		t.Fatalf("backup: %v", err)
	}

	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading original: %v", err)
	}
	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(original) != string(backup) {
		t.Error("expected backup to byte-match the original at time of backup")
	}
}

func TestEventLogCorruptLineSurfacesError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	log := NewEventLog(path)
	if _, err := log.Load(); err == nil {
		t.Error("expected error loading corrupt log line")
	}
}
