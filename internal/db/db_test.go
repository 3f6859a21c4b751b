package db

import (
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/osteele/slurm-watcher/internal/jobs"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenPath(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot() *jobs.Snapshot {
	return &jobs.Snapshot{Groups: []jobs.Group{
		{Key: "running", Jobs: []jobs.Job{
			{JobID: "101", RunningDir: "/scratch/a", ScriptFile: "run.sh", Status: "R", Time: "1:00", Comment: "eq"},
			{JobID: "102", RunningDir: "/scratch/b", ScriptFile: "run.sh", Status: "R", Time: "0:05"},
		}},
		{Key: "empty", Jobs: []jobs.Job{}},
		{Key: "done", Jobs: []jobs.Job{
			{JobID: "99", RunningDir: "/scratch/c", ScriptFile: "dock.sh", Status: "CD", Time: "5:00:00"},
		}},
	}}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := SaveSnapshot(db, "u@h:22", testSnapshot(), 1700000000); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, fetchedAt, err := LoadSnapshot(db, "u@h:22")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if fetchedAt != 1700000000 {
		t.Errorf("fetchedAt = %d", fetchedAt)
	}
	if !reflect.DeepEqual(got, testSnapshot()) {
		t.Errorf("LoadSnapshot = %+v, want %+v", got, testSnapshot())
	}
}

func TestSaveSnapshotReplaces(t *testing.T) {
	db := openTestDB(t)
	SaveSnapshot(db, "u@h:22", testSnapshot(), 1)

	small := &jobs.Snapshot{Groups: []jobs.Group{{Key: "q", Jobs: []jobs.Job{{JobID: "7"}}}}}
	if err := SaveSnapshot(db, "u@h:22", small, 2); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, _, err := LoadSnapshot(db, "u@h:22")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 || got.Groups[0].Jobs[0].JobID != "7" {
		t.Errorf("snapshot after replace = %+v", got)
	}
}

func TestSnapshotsAreKeyedByAccount(t *testing.T) {
	db := openTestDB(t)
	SaveSnapshot(db, "a@h:22", testSnapshot(), 1)

	got, fetchedAt, err := LoadSnapshot(db, "b@h:22")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil || fetchedAt != 0 {
		t.Errorf("LoadSnapshot(other) = %+v, %d; want nil", got, fetchedAt)
	}
}

func TestDeleteCachedJob(t *testing.T) {
	db := openTestDB(t)
	SaveSnapshot(db, "u@h:22", testSnapshot(), 1)
	if err := DeleteCachedJob(db, "u@h:22", "102"); err != nil {
		t.Fatal(err)
	}
	got, _, _ := LoadSnapshot(db, "u@h:22")
	if got.Len() != 2 {
		t.Errorf("Len() = %d after delete, want 2", got.Len())
	}
}

func TestCommandHistory(t *testing.T) {
	db := openTestDB(t)

	entries := []*HistoryEntry{
		{Account: "u@h:22", Family: "remote", Dir: "/scratch", Command: "ls", RanAt: 100},
		{Account: "u@h:22", Family: "cancel", Command: "scancel 42", RanAt: 200},
		{Account: "v@h:22", Family: "remote", Command: "pwd", ErrorMessage: "boom", RanAt: 300},
	}
	for _, e := range entries {
		if _, err := RecordCommand(db, e); err != nil {
			t.Fatalf("RecordCommand: %v", err)
		}
	}

	tests := []struct {
		name    string
		account string
		limit   int
		want    []string
	}{
		{"all accounts newest first", "", 0, []string{"pwd", "scancel 42", "ls"}},
		{"one account", "u@h:22", 0, []string{"scancel 42", "ls"}},
		{"limit", "", 1, []string{"pwd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListHistory(db, tt.account, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			var cmds []string
			for _, e := range got {
				cmds = append(cmds, e.Command)
			}
			if !reflect.DeepEqual(cmds, tt.want) {
				t.Errorf("ListHistory = %v, want %v", cmds, tt.want)
			}
		})
	}

	got, _ := ListHistory(db, "v@h:22", 0)
	if got[0].ErrorMessage != "boom" || got[0].Dir != "" {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestCleanupOld(t *testing.T) {
	db := openTestDB(t)
	old := time.Now().AddDate(0, 0, -40).Unix()
	RecordCommand(db, &HistoryEntry{Family: "remote", Command: "old", RanAt: old})
	RecordCommand(db, &HistoryEntry{Family: "remote", Command: "new"})

	n, err := CleanupOld(db, 30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CleanupOld removed %d, want 1", n)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{3725, "1h 2m 5s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
