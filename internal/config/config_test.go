package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.SavePassword {
		t.Errorf("SavePassword = false, want true by default")
	}
	if cfg.AllowLocalExec {
		t.Errorf("AllowLocalExec = true, want false by default")
	}
	if cfg.RemoteButtons != DefaultRemoteButtons {
		t.Errorf("RemoteButtons = %d, want %d", cfg.RemoteButtons, DefaultRemoteButtons)
	}
	if cfg.CommanderButtons != 98 {
		t.Errorf("CommanderButtons = %d, want 98", cfg.CommanderButtons)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `save_password: false
allow_local_exec: true
remote_buttons: 4
local_buttons: 0
known_hosts:
  - /etc/ssh/ssh_known_hosts
command_timeout: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SavePassword {
		t.Errorf("SavePassword = true, want false")
	}
	if !cfg.AllowLocalExec {
		t.Errorf("AllowLocalExec = false, want true")
	}
	if cfg.RemoteButtons != 4 {
		t.Errorf("RemoteButtons = %d, want 4", cfg.RemoteButtons)
	}
	// Zero capacity falls back to the default
	if cfg.LocalButtons != DefaultLocalButtons {
		t.Errorf("LocalButtons = %d, want %d", cfg.LocalButtons, DefaultLocalButtons)
	}
	if got := cfg.KnownHostsFiles(); len(got) != 1 || got[0] != "/etc/ssh/ssh_known_hosts" {
		t.Errorf("KnownHostsFiles() = %v", got)
	}
	if cfg.CommandTimeoutDuration().Seconds() != 5 {
		t.Errorf("CommandTimeoutDuration() = %v, want 5s", cfg.CommandTimeoutDuration())
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/.ssh/known_hosts", filepath.Join(home, ".ssh/known_hosts")},
		{"/abs/path", "/abs/path"},
		{"~user/x", "~user/x"},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
