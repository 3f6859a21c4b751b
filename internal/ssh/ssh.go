package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the TCP dial and SSH handshake when Config.Timeout is zero
const DefaultTimeout = 15 * time.Second

// ErrorKind classifies a connection failure
type ErrorKind int

const (
	// KindNetwork: host unreachable, refused, DNS failure or timeout
	KindNetwork ErrorKind = iota
	// KindAuth: the server rejected the credentials
	KindAuth
	// KindHostKey: the host key is unknown or does not match known_hosts
	KindHostKey
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "authentication failed"
	case KindHostKey:
		return "untrusted host key"
	default:
		return "network error"
	}
}

// ConnectError is returned when a connection cannot be established
type ConnectError struct {
	Kind ErrorKind
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %s: %v", e.Addr, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ExecError is returned when the transport fails while running a command.
// The remote command's own exit status never produces an ExecError.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("run %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ErrUnknownHost is returned by the host key callback when no known_hosts
// file could be loaded
var ErrUnknownHost = errors.New("host key not found in known_hosts")

// EscapeForSingleQuotes escapes a string for embedding in single quotes
// by replacing ' with '\'' (end quote, escaped quote, start quote)
func EscapeForSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// QuotePath single-quotes a path for the remote shell, leaving a leading
// ~ or ~/ outside the quotes so the shell still expands it
func QuotePath(path string) string {
	if path == "~" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		rest := path[2:]
		if rest == "" {
			return "~/"
		}
		return "~/'" + EscapeForSingleQuotes(rest) + "'"
	}
	return "'" + EscapeForSingleQuotes(path) + "'"
}

// Config holds what is needed to open a connection
type Config struct {
	User     string
	Password string

	// KnownHostsFiles are consulted for host key verification
	KnownHostsFiles []string
	// HostKeyCallback overrides KnownHostsFiles when set
	HostKeyCallback gossh.HostKeyCallback

	Timeout time.Duration
}

// HostKeyCallback builds a callback that accepts only keys listed in the
// given known_hosts files. Missing files are skipped; if none exist every
// host is rejected.
func HostKeyCallback(files ...string) (gossh.HostKeyCallback, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return func(hostname string, remote net.Addr, key gossh.PublicKey) error {
			return fmt.Errorf("%s: %w", hostname, ErrUnknownHost)
		}, nil
	}
	cb, err := knownhosts.New(existing...)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}
	return cb, nil
}

// Client is an open SSH connection
type Client struct {
	conn *gossh.Client
	addr string
}

// Dial opens an authenticated connection to addr (host:port)
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		cb, err := HostKeyCallback(cfg.KnownHostsFiles...)
		if err != nil {
			return nil, &ConnectError{Kind: KindHostKey, Addr: addr, Err: err}
		}
		hostKeyCallback = cb
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	password := cfg.Password
	clientConfig := &gossh.ClientConfig{
		User: cfg.User,
		Auth: []gossh.AuthMethod{
			gossh.Password(password),
			gossh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialer := &net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Kind: KindNetwork, Addr: addr, Err: err}
	}

	// Bound the handshake; cleared once the connection is established
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = netConn.SetDeadline(deadline)

	sshConn, chans, reqs, err := gossh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		netConn.Close()
		return nil, &ConnectError{Kind: classifyHandshakeError(err), Addr: addr, Err: err}
	}
	_ = netConn.SetDeadline(time.Time{})

	return &Client{
		conn: gossh.NewClient(sshConn, chans, reqs),
		addr: addr,
	}, nil
}

func classifyHandshakeError(err error) ErrorKind {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	switch {
	case errors.As(err, &keyErr), errors.As(err, &revoked), errors.Is(err, ErrUnknownHost):
		return KindHostKey
	// Older x/crypto releases flatten the callback error into the message
	case strings.Contains(err.Error(), "knownhosts:"), strings.Contains(err.Error(), ErrUnknownHost.Error()):
		return KindHostKey
	case strings.Contains(err.Error(), "unable to authenticate"):
		return KindAuth
	default:
		return KindNetwork
	}
}

// Addr returns the address the client is connected to
func (c *Client) Addr() string {
	return c.addr
}

// Run executes command in a new session channel and returns its stdout.
// A non-zero remote exit status is not an error. When ctx ends first the
// output is discarded and the session is closed in the background.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	var stdout bytes.Buffer
	sessions := make(chan *gossh.Session, 1)
	done := make(chan error, 1)

	// Opening the channel blocks on the server too, so the whole exchange
	// runs outside the caller
	go func() {
		session, err := c.conn.NewSession()
		if err != nil {
			done <- err
			return
		}
		defer session.Close()
		sessions <- session

		session.Stdout = &stdout
		session.Stderr = io.Discard
		if err := session.Start(command); err != nil {
			done <- err
			return
		}
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		// Wait has returned, so stdout is no longer written
		if err != nil && !isRemoteStatus(err) {
			return stdout.String(), &ExecError{Command: command, Err: err}
		}
		return stdout.String(), nil
	case <-ctx.Done():
		go func() {
			select {
			case session := <-sessions:
				session.Close()
			case <-done:
			}
		}()
		return "", &ExecError{Command: command, Err: ctx.Err()}
	}
}

// isRemoteStatus reports whether err only describes how the remote command ended
func isRemoteStatus(err error) bool {
	var exitErr *gossh.ExitError
	var missing *gossh.ExitMissingError
	return errors.As(err, &exitErr) || errors.As(err, &missing)
}

// ProgressFunc returns a writer that is fed the bytes of a download. size is
// -1 when the remote size is unknown.
type ProgressFunc func(size int64) io.Writer

type progressKey struct{}

// WithProgress reports the progress of downloads made with the returned context
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressWriter(ctx context.Context, src *sftp.File) io.Writer {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	if fn == nil {
		return nil
	}
	size := int64(-1)
	if fi, err := src.Stat(); err == nil {
		size = fi.Size()
	}
	return fn(size)
}

// Download copies remotePath to localPath over SFTP and returns the byte count
func (c *Client) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return 0, &ExecError{Command: "sftp get " + remotePath, Err: err}
	}
	defer client.Close()

	src, err := client.Open(sftpPath(remotePath))
	if err != nil {
		return 0, fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", localPath, err)
	}

	// Close the SFTP client on cancellation to unblock the copy
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	var w io.Writer = dst
	if progress := progressWriter(ctx, src); progress != nil {
		w = io.MultiWriter(dst, progress)
	}
	n, err := io.Copy(w, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return n, &ExecError{Command: "sftp get " + remotePath, Err: err}
	}
	return n, nil
}

// sftpPath rewrites a ~-relative path; SFTP resolves relative paths
// against the login directory but does not expand ~
func sftpPath(p string) string {
	switch {
	case p == "~":
		return "."
	case strings.HasPrefix(p, "~/"):
		return p[2:]
	}
	return p
}

// Ping sends a keepalive request and reports whether the connection
// answered before ctx ended
func (c *Client) Ping(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		_, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil)
		errc <- err
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("keepalive: %w", ctx.Err())
	}
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}
