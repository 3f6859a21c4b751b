// Package session owns the single remote connection: its lifecycle state,
// command execution and file transfer. Calls are serialized so that only
// one remote operation is in flight at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/osteele/slurm-watcher/internal/ssh"
	"github.com/osteele/slurm-watcher/internal/state"
)

// State is the connection lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

// ErrNotConnected is returned by session-dependent operations while disconnected
var ErrNotConnected = errors.New("not connected: connect to a host first")

// ErrAlreadyConnected is returned by Connect while a session is open
var ErrAlreadyConnected = errors.New("already connected: disconnect first")

// Conn is an open remote connection
type Conn interface {
	Run(ctx context.Context, command string) (string, error)
	Download(ctx context.Context, remotePath, localPath string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultPingTimeout bounds a liveness check when Options.PingTimeout is zero
const DefaultPingTimeout = 5 * time.Second

// DialFunc opens a connection for an account
type DialFunc func(ctx context.Context, account state.Account, cfg ssh.Config) (Conn, error)

// Options configure a Manager
type Options struct {
	KnownHostsFiles []string
	ConnectTimeout  time.Duration
	// CommandTimeout bounds each Run and Download (0 means no limit)
	CommandTimeout time.Duration
	// PingTimeout bounds each liveness check; a server that does not
	// answer in time is treated as gone
	PingTimeout time.Duration
	Logger      zerolog.Logger
	// Dial overrides the SSH dialer
	Dial DialFunc
}

// Manager owns the single active connection
type Manager struct {
	mu      sync.Mutex
	state   State
	conn    Conn
	account state.Account
	opts    Options
	log     zerolog.Logger
}

// New returns a disconnected manager
func New(opts Options) *Manager {
	if opts.Dial == nil {
		opts.Dial = dialSSH
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	return &Manager{
		opts: opts,
		log:  opts.Logger,
	}
}

func dialSSH(ctx context.Context, account state.Account, cfg ssh.Config) (Conn, error) {
	client, err := ssh.Dial(ctx, account.Addr(), cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Connect opens a session for account. On failure the manager stays
// Disconnected and the error (an *ssh.ConnectError for dial failures) is
// returned; nothing is retried.
func (m *Manager) Connect(ctx context.Context, account state.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnected {
		return ErrAlreadyConnected
	}

	m.state = StateConnecting
	m.log.Info().Str("account", account.String()).Msg("connecting")

	conn, err := m.opts.Dial(ctx, account, ssh.Config{
		User:            account.Login,
		Password:        account.Password,
		KnownHostsFiles: m.opts.KnownHostsFiles,
		Timeout:         m.opts.ConnectTimeout,
	})
	if err != nil {
		m.state = StateDisconnected
		m.log.Warn().Err(err).Str("account", account.String()).Msg("connect failed")
		return err
	}

	m.conn = conn
	m.account = account
	m.state = StateConnected
	m.log.Info().Str("account", account.String()).Msg("connected")
	return nil
}

// Disconnect closes the session. It is a no-op when already disconnected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.conn == nil {
		m.state = StateDisconnected
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	m.state = StateDisconnected
	m.log.Info().Str("account", m.account.String()).Msg("disconnected")
	return err
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether a session is open
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Account returns the account of the open session
func (m *Manager) Account() (state.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return state.Account{}, false
	}
	return m.account, true
}

// Command builds the command line run for command in dir
func Command(dir, command string) string {
	if dir == "" {
		return command
	}
	return "cd " + ssh.QuotePath(dir) + " ; " + command
}

// Run executes command in dir (when non-empty) and returns its stdout.
// The remote exit status is not inspected.
func (m *Manager) Run(ctx context.Context, dir, command string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return "", ErrNotConnected
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	line := Command(dir, command)
	m.log.Debug().Str("command", line).Msg("run")
	out, err := m.conn.Run(ctx, line)
	if err != nil {
		m.checkTransportLocked(err)
		return out, err
	}
	return out, nil
}

// Download copies a remote file to localPath
func (m *Manager) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return 0, ErrNotConnected
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	n, err := m.conn.Download(ctx, remotePath, localPath)
	if err != nil {
		m.checkTransportLocked(err)
		return n, err
	}
	m.log.Info().Str("remote", remotePath).Str("local", localPath).Int64("bytes", n).Msg("downloaded")
	return n, nil
}

// Check pings the connection, disconnecting if it no longer answers
func (m *Manager) Check(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected {
		return ErrNotConnected
	}
	if err := m.pingLocked(ctx); err != nil {
		m.log.Warn().Err(err).Msg("connection lost")
		m.closeLocked()
		return fmt.Errorf("connection lost: %w", err)
	}
	return nil
}

// checkTransportLocked drops the session when a failed call left the
// transport dead
func (m *Manager) checkTransportLocked(err error) {
	var execErr *ssh.ExecError
	if !errors.As(err, &execErr) {
		return
	}
	// The caller's context may already be done; the ping gets its own
	if pingErr := m.pingLocked(context.Background()); pingErr != nil {
		m.log.Warn().Err(err).AnErr("ping", pingErr).Msg("transport failed, disconnecting")
		m.closeLocked()
	}
}

func (m *Manager) pingLocked(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
	defer cancel()
	return m.conn.Ping(ctx)
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.CommandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opts.CommandTimeout)
}
