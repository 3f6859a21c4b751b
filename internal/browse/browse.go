// Package browse lists remote and local directories. Directory entries
// carry a trailing "/" and every listing ends with a "../" entry.
package browse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/osteele/slurm-watcher/internal/ssh"
)

// ParentEntry is appended to every listing
const ParentEntry = "../"

// ErrNotDirectory is returned when descending into an entry that is not a directory
var ErrNotDirectory = errors.New("not a directory")

// ErrNoDirectory is returned when no current directory has been chosen
var ErrNoDirectory = errors.New("no directory selected")

// Entry is one line of a listing
type Entry struct {
	Name  string // includes the trailing "/" for directories
	IsDir bool
}

// String returns the entry as displayed
func (e Entry) String() string {
	return e.Name
}

// BaseName returns the name without the directory marker
func (e Entry) BaseName() string {
	return strings.TrimSuffix(e.Name, "/")
}

func newEntry(name string) Entry {
	return Entry{Name: name, IsDir: strings.HasSuffix(name, "/")}
}

// Runner runs a command in the remote session
type Runner interface {
	Run(ctx context.Context, dir, command string) (string, error)
}

// Remote lists directories through the remote session
type Remote struct {
	runner Runner
}

// NewRemote returns a remote browser using runner
func NewRemote(runner Runner) *Remote {
	return &Remote{runner: runner}
}

// ListCommand is the listing command for dir; -p marks directories with "/"
func ListCommand(dir string) string {
	return "ls -p " + ssh.QuotePath(dir)
}

// List returns the entries of dir followed by the parent marker
func (r *Remote) List(ctx context.Context, dir string) ([]Entry, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}
	out, err := r.runner.Run(ctx, "", ListCommand(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return ParseListing(out), nil
}

// ParseListing turns `ls -p` output into entries, one per non-blank line
func ParseListing(output string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		entries = append(entries, newEntry(name))
	}
	return append(entries, newEntry(ParentEntry))
}

// DescendRemote returns the remote path of entry relative to current
func DescendRemote(current, entry string) (string, error) {
	if !strings.HasSuffix(entry, "/") {
		return "", fmt.Errorf("%s: %w", entry, ErrNotDirectory)
	}
	return path.Clean(path.Join(current, entry)), nil
}

// JoinRemote joins a remote directory and a file name
func JoinRemote(dir, name string) string {
	return path.Join(dir, name)
}

// ListLocal returns the sorted entries of a local directory followed by
// the parent marker
func ListLocal(dir string) ([]Entry, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		name := item.Name()
		if isDir(dir, item) {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.TrimSuffix(names[i], "/") < strings.TrimSuffix(names[j], "/")
	})

	entries := make([]Entry, 0, len(names)+1)
	for _, name := range names {
		entries = append(entries, newEntry(name))
	}
	return append(entries, newEntry(ParentEntry)), nil
}

// isDir follows symlinks so linked directories can be entered
func isDir(dir string, item os.DirEntry) bool {
	if item.IsDir() {
		return true
	}
	if item.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, item.Name()))
	return err == nil && info.IsDir()
}

// DescendLocal returns the local path of entry relative to current
func DescendLocal(current, entry string) (string, error) {
	if !strings.HasSuffix(entry, "/") {
		return "", fmt.Errorf("%s: %w", entry, ErrNotDirectory)
	}
	return filepath.Clean(filepath.Join(current, entry)), nil
}
