package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/osteele/slurm-watcher/internal/jobs"
)

var dbPath string

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	dbPath = filepath.Join(home, ".config", "slurm-watcher", "cache.db")
}

// Path returns the default database location
func Path() string {
	return dbPath
}

// Open opens the default database, creating it if necessary
func Open() (*sql.DB, error) {
	return OpenPath(dbPath)
}

// OpenPath opens the database at path, creating it if necessary
func OpenPath(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		account TEXT PRIMARY KEY,
		fetched_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshot_groups (
		account TEXT NOT NULL,
		position INTEGER NOT NULL,
		group_key TEXT NOT NULL,
		PRIMARY KEY (account, position)
	);
	CREATE TABLE IF NOT EXISTS snapshot_jobs (
		account TEXT NOT NULL,
		group_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		job_id TEXT NOT NULL,
		running_dir TEXT,
		script_file TEXT,
		status TEXT,
		time TEXT,
		comment TEXT,
		PRIMARY KEY (account, group_position, position)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshot_jobs_job ON snapshot_jobs(account, job_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	historySchema := `
	CREATE TABLE IF NOT EXISTS command_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT,
		family TEXT NOT NULL,
		dir TEXT,
		command TEXT NOT NULL,
		error_message TEXT,
		ran_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_account ON command_history(account);
	CREATE INDEX IF NOT EXISTS idx_history_ran ON command_history(ran_at DESC);
	`
	if _, err := db.Exec(historySchema); err != nil {
		return err
	}

	return nil
}

// SaveSnapshot replaces the cached snapshot for account
func SaveSnapshot(db *sql.DB, account string, snap *jobs.Snapshot, fetchedAt int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshots", "snapshot_groups", "snapshot_jobs"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE account = ?`, account); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO snapshots (account, fetched_at) VALUES (?, ?)`, account, fetchedAt); err != nil {
		return err
	}

	if snap != nil {
		for gi, g := range snap.Groups {
			if _, err := tx.Exec(
				`INSERT INTO snapshot_groups (account, position, group_key) VALUES (?, ?, ?)`,
				account, gi, g.Key,
			); err != nil {
				return err
			}
			for ji, j := range g.Jobs {
				if _, err := tx.Exec(
					`INSERT INTO snapshot_jobs (account, group_position, position, job_id, running_dir, script_file, status, time, comment)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					account, gi, ji, j.JobID, j.RunningDir, j.ScriptFile, j.Status, j.Time, j.Comment,
				); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

// LoadSnapshot returns the cached snapshot for account and when it was
// fetched. Returns nil, 0, nil when nothing is cached.
func LoadSnapshot(db *sql.DB, account string) (*jobs.Snapshot, int64, error) {
	var fetchedAt int64
	err := db.QueryRow(`SELECT fetched_at FROM snapshots WHERE account = ?`, account).Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	snap := &jobs.Snapshot{}
	rows, err := db.Query(
		`SELECT group_key FROM snapshot_groups WHERE account = ? ORDER BY position ASC`, account)
	if err != nil {
		return nil, 0, err
	}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, 0, err
		}
		snap.Groups = append(snap.Groups, jobs.Group{Key: key, Jobs: []jobs.Job{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	rows, err = db.Query(
		`SELECT group_position, job_id, running_dir, script_file, status, time, comment
		 FROM snapshot_jobs WHERE account = ? ORDER BY group_position ASC, position ASC`, account)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var gi int
		var j jobs.Job
		var runningDir, scriptFile, status, elapsed, comment sql.NullString
		if err := rows.Scan(&gi, &j.JobID, &runningDir, &scriptFile, &status, &elapsed, &comment); err != nil {
			return nil, 0, err
		}
		j.RunningDir = runningDir.String
		j.ScriptFile = scriptFile.String
		j.Status = status.String
		j.Time = elapsed.String
		j.Comment = comment.String
		if gi < 0 || gi >= len(snap.Groups) {
			continue
		}
		snap.Groups[gi].Jobs = append(snap.Groups[gi].Jobs, j)
	}

	return snap, fetchedAt, rows.Err()
}

// DeleteCachedJob removes every cached row for a job
func DeleteCachedJob(db *sql.DB, account, jobID string) error {
	_, err := db.Exec(`DELETE FROM snapshot_jobs WHERE account = ? AND job_id = ?`, account, jobID)
	return err
}

// HistoryEntry is one executed command
type HistoryEntry struct {
	ID           int64
	Account      string
	Family       string
	Dir          string
	Command      string
	ErrorMessage string
	RanAt        int64
}

// RecordCommand appends to the command history and returns the new ID
func RecordCommand(db *sql.DB, e *HistoryEntry) (int64, error) {
	ranAt := e.RanAt
	if ranAt == 0 {
		ranAt = time.Now().Unix()
	}
	result, err := db.Exec(
		`INSERT INTO command_history (account, family, dir, command, error_message, ran_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Account, e.Family, e.Dir, e.Command, e.ErrorMessage, ranAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListHistory returns the most recent commands, newest first. An empty
// account lists every account.
func ListHistory(db *sql.DB, account string, limit int) ([]*HistoryEntry, error) {
	query := `SELECT id, account, family, dir, command, error_message, ran_at FROM command_history`
	var args []interface{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY ran_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		var acct, dir, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &acct, &e.Family, &dir, &e.Command, &errMsg, &e.RanAt); err != nil {
			return nil, err
		}
		e.Account = acct.String
		e.Dir = dir.String
		e.ErrorMessage = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CleanupOld removes history entries older than the specified number of days
func CleanupOld(db *sql.DB, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	result, err := db.Exec(`DELETE FROM command_history WHERE ran_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// FormatDuration formats a duration in human-readable form
func FormatDuration(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}
