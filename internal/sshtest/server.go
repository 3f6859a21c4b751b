// Package sshtest runs an in-process SSH server for tests. It answers
// exec requests through a handler function and serves the sftp subsystem
// from the local filesystem.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Handler produces the stdout and exit status for an exec request
type Handler func(command string) (stdout string, exitStatus int)

// Server is a minimal SSH server bound to 127.0.0.1
type Server struct {
	Addr     string
	User     string
	Password string
	HostKey  gossh.PublicKey

	handler  Handler
	listener net.Listener

	mu       sync.Mutex
	commands []string
	conns    []net.Conn
	stalled  bool
	wg       sync.WaitGroup

	quit     chan struct{}
	quitOnce sync.Once
}

// NewServer starts a server accepting user "tester" with password "secret".
// It is shut down when the test ends.
func NewServer(t testing.TB, handler Handler) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Addr:     l.Addr().String(),
		User:     "tester",
		Password: "secret",
		HostKey:  signer.PublicKey(),
		handler:  handler,
		listener: l,
		quit:     make(chan struct{}),
	}

	config := &gossh.ServerConfig{
		PasswordCallback: func(c gossh.ConnMetadata, pass []byte) (*gossh.Permissions, error) {
			if c.User() == s.User && string(pass) == s.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	s.wg.Add(1)
	go s.serve(config)
	t.Cleanup(s.Close)
	return s
}

// Host returns the listening host without the port
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr)
	return host
}

// Port returns the listening port
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr)
	var n int
	fmt.Sscanf(port, "%d", &n)
	return n
}

// KnownHostsFile writes a known_hosts file trusting this server's key
func (s *Server) KnownHostsFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(s.Addr)}, s.HostKey)
	if err := os.WriteFile(path, []byte(line+"\n"), 0600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return path
}

// Commands returns the exec commands received so far
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// DropConnections closes every open client connection
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Stall makes the server stop answering: keepalives and other global
// requests get no reply, and exec requests are accepted but never produce
// output or an exit status until the server is closed.
func (s *Server) Stall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = true
}

func (s *Server) isStalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

// Close stops the server
func (s *Server) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.listener.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) serve(config *gossh.ServerConfig) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handleConn(conn, config)
	}
}

func (s *Server) handleConn(conn net.Conn, config *gossh.ServerConfig) {
	_, chans, reqs, err := gossh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go s.handleGlobalRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(gossh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *Server) handleGlobalRequests(reqs <-chan *gossh.Request) {
	for req := range reqs {
		if s.isStalled() {
			continue
		}
		if req.WantReply {
			req.Reply(false, nil)
		}
	}
}

func (s *Server) handleSession(ch gossh.Channel, reqs <-chan *gossh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := gossh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			stalled := s.stalled
			s.mu.Unlock()
			if stalled {
				<-s.quit
				return
			}

			out, status := "", 0
			if s.handler != nil {
				out, status = s.handler(payload.Command)
			}
			ch.Write([]byte(out))
			ch.SendRequest("exit-status", false, gossh.Marshal(struct{ Status uint32 }{uint32(status)}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := gossh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			server.Serve()
			server.Close()
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}
