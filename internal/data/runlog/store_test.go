package runlog

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_OpenInitializesSchemaAndRecordRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	first := Run{
		RunID:      "run-1",
		Version:    1,
		Mode:       "full",
		StartedAt:  base,
		FinishedAt: base.Add(3 * time.Second),
		Files:      8,
		Failed:     1,
		Nodes:      5,
		Edges:      4,
		Cycles:     1,
	}
	second := Run{
		RunID:           "run-2",
		Version:         2,
		Mode:            "incremental",
		StartedAt:       base.Add(time.Hour),
		FinishedAt:      base.Add(time.Hour + time.Second),
		Files:           9,
		Reextracted:     2,
		StaleCandidates: 3,
		SnapshotDir:     ".codeindex/v2",
	}

	if err := store.Record(ctx, first); err != nil {
		t.Fatalf("record first run: %v", err)
	}
	if err := store.Record(ctx, second); err != nil {
		t.Fatalf("record second run: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].RunID != "run-2" || got[1].RunID != "run-1" {
		t.Fatalf("expected newest first, got %s then %s", got[0].RunID, got[1].RunID)
	}
	if got[0].Reextracted != 2 || got[0].StaleCandidates != 3 || got[0].SnapshotDir != ".codeindex/v2" {
		t.Fatalf("expected counts to roundtrip, got %+v", got[0])
	}
	if got[1].Duration() != 3*time.Second {
		t.Fatalf("expected duration 3s, got %v", got[1].Duration())
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Version != 2 {
		t.Fatalf("unexpected limited runs: %+v", limited)
	}
}

func TestStore_RecordUpsertsByRunID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Record(ctx, Run{RunID: "same", Version: 1, Mode: "full", Files: 1}); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, Run{RunID: "same", Version: 1, Mode: "full", Files: 7}); err != nil {
		t.Fatal(err)
	}
	runs, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Files != 7 {
		t.Fatalf("expected one upserted run, got %+v", runs)
	}
}

func TestStore_RecordRequiresRunID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Record(context.Background(), Run{Version: 1}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir())
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	_, err = store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
	if IsCorruptError(nil) {
		t.Fatal("nil is not corrupt")
	}
}
