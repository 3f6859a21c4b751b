// Package engine ties the session, job table, browsers, button registry
// and persisted state together. One Engine serves one operator; every
// public method holds the engine lock so at most one remote call is in
// flight.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/osteele/slurm-watcher/internal/browse"
	"github.com/osteele/slurm-watcher/internal/buttons"
	"github.com/osteele/slurm-watcher/internal/config"
	"github.com/osteele/slurm-watcher/internal/db"
	"github.com/osteele/slurm-watcher/internal/jobs"
	"github.com/osteele/slurm-watcher/internal/session"
	"github.com/osteele/slurm-watcher/internal/state"
)

// Errors for operations that need a selection
var (
	ErrNoJob      = errors.New("please select a job")
	ErrInvalidJob = errors.New("invalid job ID")
	ErrNoFile     = errors.New("please select a file")
	ErrUnknownJob = errors.New("job not in the current status table")
)

// ErrAccountNotSaved is returned by Connect when the session opened but the
// new account could not be persisted. The session stays connected.
var ErrAccountNotSaved = errors.New("connected, but the account could not be saved")

// Options configure an Engine
type Options struct {
	Config *config.Config
	Store  *state.Store
	// Session defaults to a manager built from Config
	Session *session.Manager
	// DB caches snapshots and records command history; nil disables both
	DB     *sql.DB
	Logger zerolog.Logger
	// LocalRun overrides local process execution
	LocalRun buttons.LocalRunFunc
	// WorkDir is the initial local directory; defaults to the process cwd
	WorkDir string
}

// Engine is the operator-facing facade
type Engine struct {
	mu sync.Mutex

	cfg     *config.Config
	store   *state.Store
	st      *state.State
	sess    *session.Manager
	jobs    *jobs.Store
	buttons *buttons.Registry
	remote  *browse.Remote
	db      *sql.DB
	log     zerolog.Logger

	remoteDir string
	localDir  string
}

// New loads the persisted state and returns a disconnected engine. The
// local working directory is bookmarked if it is not already.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Store == nil {
		return nil, errors.New("engine: state store is required")
	}

	st, err := opts.Store.Load()
	if err != nil {
		return nil, err
	}

	sess := opts.Session
	if sess == nil {
		sess = session.New(session.Options{
			KnownHostsFiles: cfg.KnownHostsFiles(),
			ConnectTimeout:  cfg.ConnectTimeoutDuration(),
			CommandTimeout:  cfg.CommandTimeoutDuration(),
			Logger:          opts.Logger,
		})
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
	}

	e := &Engine{
		cfg:      cfg,
		store:    opts.Store,
		st:       st,
		sess:     sess,
		jobs:     jobs.NewStore(),
		remote:   browse.NewRemote(sess),
		db:       opts.DB,
		log:      opts.Logger,
		localDir: workDir,
	}
	e.buttons = buttons.NewRegistry(st, buttons.Options{
		Persister:      opts.Store,
		Remote:         sess,
		AllowLocalExec: cfg.AllowLocalExec,
		LocalRun:       opts.LocalRun,
		Logger:         opts.Logger,
	})

	if st.AddLocalPath(workDir) {
		if err := e.store.Save(st); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Status describes the engine's current state
type Status struct {
	State     session.State
	Account   state.Account
	RemoteDir string
	LocalDir  string
	Jobs      int
}

// Status returns the connection state and current directories
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, _ := e.sess.Account()
	return Status{
		State:     e.sess.State(),
		Account:   acct,
		RemoteDir: e.remoteDir,
		LocalDir:  e.localDir,
		Jobs:      e.jobs.Snapshot().Len(),
	}
}

// Accounts returns the known accounts
func (e *Engine) Accounts() state.Accounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(state.Accounts(nil), e.st.Accounts...)
}

// Connect opens a session and records the account if this exact tuple is
// new. The password is dropped from the recorded tuple when passwords are
// not saved. If saving fails the account list is left as it was and an
// error wrapping ErrAccountNotSaved is returned.
func (e *Engine) Connect(ctx context.Context, account state.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.sess.Connect(ctx, account); err != nil {
		return err
	}

	record := account
	if !e.cfg.SavePassword {
		record.Password = ""
	}
	accounts, added := e.st.Accounts.Add(record)
	if added {
		previous := e.st.Accounts
		e.st.Accounts = accounts
		if err := e.store.Save(e.st); err != nil {
			e.st.Accounts = previous
			e.log.Warn().Err(err).Str("account", record.String()).Msg("account not saved")
			return fmt.Errorf("%w: %v", ErrAccountNotSaved, err)
		}
		e.log.Info().Str("account", record.String()).Msg("account saved")
	}
	return nil
}

// Disconnect closes the session
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Disconnect()
}

// Check pings the session and drops it when the server no longer answers
func (e *Engine) Check(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Check(ctx)
}

func (e *Engine) accountLocked() (state.Account, error) {
	acct, ok := e.sess.Account()
	if !ok {
		return state.Account{}, session.ErrNotConnected
	}
	return acct, nil
}

// RefreshJobs queries the scheduler helper and replaces the job table.
// On a parse error the previous table is kept.
func (e *Engine) RefreshJobs(ctx context.Context) (*jobs.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.accountLocked()
	if err != nil {
		return nil, err
	}

	out, err := e.sess.Run(ctx, "", jobs.StatusCommand(acct.JobManagerDir))
	if err != nil {
		return nil, fmt.Errorf("query job status: %w", err)
	}
	snap, err := e.jobs.Refresh(out)
	if err != nil {
		e.log.Warn().Err(err).Msg("status report rejected, keeping previous table")
		return nil, err
	}

	if e.db != nil {
		if err := db.SaveSnapshot(e.db, acct.String(), snap, time.Now().Unix()); err != nil {
			e.log.Warn().Err(err).Msg("failed to cache snapshot")
		}
	}
	e.log.Debug().Int("jobs", snap.Len()).Msg("job table refreshed")
	return snap, nil
}

// Jobs returns the rows of the current table matching filter. It does not
// wait for a remote call in flight.
func (e *Engine) Jobs(filter string) []jobs.Entry {
	return e.jobs.Filter(filter)
}

// CachedJobs returns the last snapshot cached for account
func (e *Engine) CachedJobs(account state.Account) (*jobs.Snapshot, time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil, time.Time{}, nil
	}
	snap, fetchedAt, err := db.LoadSnapshot(e.db, account.String())
	if err != nil || snap == nil {
		return nil, time.Time{}, err
	}
	return snap, time.Unix(fetchedAt, 0), nil
}

func checkJobID(jobID string) error {
	if jobID == "" {
		return ErrNoJob
	}
	if !jobs.ValidJobID(jobID) {
		return fmt.Errorf("%w: %q", ErrInvalidJob, jobID)
	}
	return nil
}

// CancelJob asks the scheduler to cancel a job. The row stays until the
// next refresh.
func (e *Engine) CancelJob(ctx context.Context, jobID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.accountLocked(); err != nil {
		return "", err
	}
	if err := checkJobID(jobID); err != nil {
		return "", err
	}
	cmd := jobs.CancelCommand(jobID)
	out, err := e.sess.Run(ctx, "", cmd)
	e.recordLocked("cancel", "", cmd, err)
	return out, err
}

// ForgetJob removes a job from the job manager's records and drops its row
func (e *Engine) ForgetJob(ctx context.Context, jobID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.accountLocked()
	if err != nil {
		return "", err
	}
	if err := checkJobID(jobID); err != nil {
		return "", err
	}
	cmd := jobs.RemoveCommand(acct.JobManagerDir, jobID)
	out, err := e.sess.Run(ctx, "", cmd)
	e.recordLocked("forget", "", cmd, err)
	if err != nil {
		return out, err
	}

	e.jobs.Remove(jobID)
	if e.db != nil {
		if err := db.DeleteCachedJob(e.db, acct.String(), jobID); err != nil {
			e.log.Warn().Err(err).Msg("failed to update cached snapshot")
		}
	}
	return out, nil
}

// SelectJob makes the job's running directory current and lists it
func (e *Engine) SelectJob(ctx context.Context, jobID string) ([]browse.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.accountLocked(); err != nil {
		return nil, err
	}
	entry, ok := e.jobs.Find(jobID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", jobID, ErrUnknownJob)
	}
	e.remoteDir = entry.Job.RunningDir
	return e.remote.List(ctx, e.remoteDir)
}

// SetRemoteDir changes the current remote directory without listing it
func (e *Engine) SetRemoteDir(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remoteDir = dir
}

// RemoteDir returns the current remote directory
func (e *Engine) RemoteDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remoteDir
}

// ListRemote lists the current remote directory
func (e *Engine) ListRemote(ctx context.Context) ([]browse.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.accountLocked(); err != nil {
		return nil, err
	}
	return e.remote.List(ctx, e.remoteDir)
}

// DescendRemote enters a directory entry of the current listing and lists it
func (e *Engine) DescendRemote(ctx context.Context, entry string) ([]browse.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.accountLocked(); err != nil {
		return nil, err
	}
	if e.remoteDir == "" {
		return nil, browse.ErrNoDirectory
	}
	dir, err := browse.DescendRemote(e.remoteDir, entry)
	if err != nil {
		return nil, err
	}
	entries, err := e.remote.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	e.remoteDir = dir
	return entries, nil
}

// Download copies a file from the current remote directory into the
// current local directory and returns the local path
func (e *Engine) Download(ctx context.Context, name string) (string, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.accountLocked(); err != nil {
		return "", 0, err
	}
	if e.remoteDir == "" {
		return "", 0, browse.ErrNoDirectory
	}
	if name == "" || name == browse.ParentEntry {
		return "", 0, ErrNoFile
	}
	if path.IsAbs(name) || path.Base(name) != name {
		return "", 0, fmt.Errorf("%q: download takes a name from the current directory", name)
	}

	remotePath := browse.JoinRemote(e.remoteDir, name)
	localPath := filepath.Join(e.localDir, name)
	n, err := e.sess.Download(ctx, remotePath, localPath)
	if err != nil {
		return "", 0, err
	}
	return localPath, n, nil
}

// RunCommand runs an ad-hoc command in the current remote directory
func (e *Engine) RunCommand(ctx context.Context, command string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.accountLocked(); err != nil {
		return "", err
	}
	out, err := e.sess.Run(ctx, e.remoteDir, command)
	e.recordLocked("exec", e.remoteDir, command, err)
	return out, err
}

// SetLocalDir changes the current local directory
func (e *Engine) SetLocalDir(dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	abs, err := filepath.Abs(config.ExpandHome(dir))
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", abs, browse.ErrNotDirectory)
	}
	e.localDir = abs
	return nil
}

// LocalDir returns the current local directory
func (e *Engine) LocalDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localDir
}

// ListLocal lists the current local directory
func (e *Engine) ListLocal() ([]browse.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return browse.ListLocal(e.localDir)
}

// DescendLocal enters a directory entry of the current local listing
func (e *Engine) DescendLocal(entry string) ([]browse.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir, err := browse.DescendLocal(e.localDir, entry)
	if err != nil {
		return nil, err
	}
	entries, err := browse.ListLocal(dir)
	if err != nil {
		return nil, err
	}
	e.localDir = dir
	return entries, nil
}

// AddBookmark bookmarks the current local directory. Returns false when
// it was already bookmarked.
func (e *Engine) AddBookmark() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.st.AddLocalPath(e.localDir) {
		return false, nil
	}
	if err := e.store.Save(e.st); err != nil {
		return true, err
	}
	return true, nil
}

// Bookmarks returns the local path bookmarks, most recent first
func (e *Engine) Bookmarks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.st.LocalPaths...)
}

// SetButton stores a template in a button slot and persists it
func (e *Engine) SetButton(f buttons.Family, index int, label, body string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buttons.SetTemplate(f, index, label, body)
}

// Buttons returns a family's slots
func (e *Engine) Buttons(f buttons.Family) []state.Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buttons.List(f)
}

// RunButton executes a button against the given file selection. Remote
// buttons run in the current remote directory, local ones in the current
// local directory.
func (e *Engine) RunButton(ctx context.Context, f buttons.Family, index int, files ...string) (buttons.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sel := buttons.Selection{Dir: e.remoteDir, Files: files}
	if f.IsLocal() {
		sel.Dir = e.localDir
	}
	res, err := e.buttons.Execute(ctx, f, index, sel)
	if res.Command != "" {
		e.recordLocked(f.String(), res.Dir, res.Command, err)
	}
	return res, err
}

// ExportState writes the full state to path
func (e *Engine) ExportState(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Export(e.st, path)
}

// ImportState merges the document at path into the state and persists it
func (e *Engine) ImportState(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Import(e.st, path); err != nil {
		return err
	}
	return e.store.Save(e.st)
}

// History returns recently executed commands for the connected account,
// or for every account while disconnected
func (e *Engine) History(limit int) ([]*db.HistoryEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil, nil
	}
	account := ""
	if acct, ok := e.sess.Account(); ok {
		account = acct.String()
	}
	return db.ListHistory(e.db, account, limit)
}

func (e *Engine) recordLocked(family, dir, command string, runErr error) {
	if e.db == nil {
		return
	}
	entry := &db.HistoryEntry{Family: family, Dir: dir, Command: command}
	if acct, ok := e.sess.Account(); ok {
		entry.Account = acct.String()
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
	}
	if _, err := db.RecordCommand(e.db, entry); err != nil {
		e.log.Warn().Err(err).Msg("failed to record command")
	}
}
