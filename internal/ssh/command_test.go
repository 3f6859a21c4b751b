package ssh

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/crypto/ssh/knownhosts"
)

// TestQuotePath verifies that paths are quoted for the remote shell
// while a leading ~ stays outside the quotes for tilde expansion
func TestQuotePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "tilde path keeps tilde unquoted",
			path: "~/scratch/run 1",
			want: "~/'scratch/run 1'",
		},
		{
			name: "bare tilde",
			path: "~",
			want: "~",
		},
		{
			name: "absolute path is quoted",
			path: "/home/u/proj",
			want: "'/home/u/proj'",
		},
		{
			name: "embedded single quote",
			path: "/tmp/it's",
			want: `'/tmp/it'\''s'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuotePath(tt.path); got != tt.want {
				t.Errorf("QuotePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestEscapeForSingleQuotes verifies that commands are properly escaped
// for embedding in bash -c '...'
func TestEscapeForSingleQuotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no special chars",
			input:    "echo hello",
			expected: "echo hello",
		},
		{
			name:     "single quote",
			input:    "echo 'hello world'",
			expected: "echo '\\''hello world'\\''",
		},
		{
			name:     "multiple single quotes",
			input:    "echo 'a' 'b'",
			expected: "echo '\\''a'\\'' '\\''b'\\''",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EscapeForSingleQuotes(tt.input)
			if result != tt.expected {
				t.Errorf("EscapeForSingleQuotes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestClassifyHandshakeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"key mismatch", &knownhosts.KeyError{Want: []knownhosts.KnownKey{{Filename: "known_hosts", Line: 1}}}, KindHostKey},
		{"unknown host", fmt.Errorf("ssh: handshake failed: %w", ErrUnknownHost), KindHostKey},
		{"flattened knownhosts message", errors.New("ssh: handshake failed: knownhosts: key is unknown"), KindHostKey},
		{"rejected password", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"), KindAuth},
		{"handshake timeout", errors.New("ssh: handshake failed: read tcp 127.0.0.1:50000->127.0.0.1:22: i/o timeout"), KindNetwork},
		{"closed by peer", errors.New("ssh: handshake failed: EOF"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyHandshakeError(tt.err); got != tt.want {
				t.Errorf("classifyHandshakeError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSFTPPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"~", "."},
		{"~/run1/out.log", "run1/out.log"},
		{"/scratch/out.log", "/scratch/out.log"},
		{"relative/out.log", "relative/out.log"},
	}
	for _, tt := range tests {
		if got := sftpPath(tt.in); got != tt.want {
			t.Errorf("sftpPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
