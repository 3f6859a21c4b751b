package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/osteele/slurm-watcher/internal/browse"
	"github.com/osteele/slurm-watcher/internal/buttons"
	"github.com/osteele/slurm-watcher/internal/engine"
	"github.com/osteele/slurm-watcher/internal/jobs"
	"github.com/osteele/slurm-watcher/internal/session"
	"github.com/osteele/slurm-watcher/internal/state"
)

type buttonCall struct {
	family buttons.Family
	index  int
	files  []string
}

type fakeBackend struct {
	entries    []jobs.Entry
	listing    []browse.Entry
	local      []browse.Entry
	refreshed  int
	selected   []string
	descended  []string
	cancelled  []string
	buttons    []buttonCall
	commands   []string
	refreshErr error
	checked    int
	checkErr   error
}

func (f *fakeBackend) Status() engine.Status {
	return engine.Status{State: session.StateConnected, RemoteDir: "/scratch/md1", LocalDir: "/home/me"}
}

func (f *fakeBackend) Check(ctx context.Context) error {
	f.checked++
	return f.checkErr
}

func (f *fakeBackend) RefreshJobs(ctx context.Context) (*jobs.Snapshot, error) {
	f.refreshed++
	return nil, f.refreshErr
}

func (f *fakeBackend) Jobs(filter string) []jobs.Entry {
	var out []jobs.Entry
	for _, e := range f.entries {
		if strings.Contains(e.Job.JobID+e.Job.RunningDir, filter) {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBackend) CancelJob(ctx context.Context, jobID string) (string, error) {
	f.cancelled = append(f.cancelled, jobID)
	return "", nil
}

func (f *fakeBackend) ForgetJob(ctx context.Context, jobID string) (string, error) {
	return "", nil
}

func (f *fakeBackend) SelectJob(ctx context.Context, jobID string) ([]browse.Entry, error) {
	f.selected = append(f.selected, jobID)
	return f.listing, nil
}

func (f *fakeBackend) ListRemote(ctx context.Context) ([]browse.Entry, error) {
	return f.listing, nil
}

func (f *fakeBackend) DescendRemote(ctx context.Context, entry string) ([]browse.Entry, error) {
	f.descended = append(f.descended, entry)
	return f.listing, nil
}

func (f *fakeBackend) ListLocal() ([]browse.Entry, error) { return f.local, nil }

func (f *fakeBackend) DescendLocal(entry string) ([]browse.Entry, error) { return f.local, nil }

func (f *fakeBackend) Download(ctx context.Context, name string) (string, int64, error) {
	return "/home/me/" + name, 12, nil
}

func (f *fakeBackend) RunCommand(ctx context.Context, command string) (string, error) {
	f.commands = append(f.commands, command)
	return "ran " + command + "\n", nil
}

func (f *fakeBackend) RunButton(ctx context.Context, fam buttons.Family, index int, files ...string) (buttons.Result, error) {
	f.buttons = append(f.buttons, buttonCall{family: fam, index: index, files: files})
	return buttons.Result{Output: "button output"}, nil
}

func (f *fakeBackend) Buttons(fam buttons.Family) []state.Template {
	return []state.Template{{Label: "tail", Body: "tail $1"}}
}

func (f *fakeBackend) AddBookmark() (bool, error) { return true, nil }

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		entries: []jobs.Entry{
			{Group: "md", Job: jobs.Job{JobID: "101", RunningDir: "/scratch/md1", Status: "R"}},
			{Group: "md", Job: jobs.Job{JobID: "102", RunningDir: "/scratch/md2", Status: "PD"}},
			{Group: "qm", Job: jobs.Job{JobID: "203", RunningDir: "/scratch/qm", Status: "CD"}},
		},
		listing: []browse.Entry{
			{Name: browse.ParentEntry, IsDir: true},
			{Name: "traj/", IsDir: true},
			{Name: "slurm.out"},
		},
		local: []browse.Entry{
			{Name: browse.ParentEntry, IsDir: true},
			{Name: "model.pdb"},
		},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command, feeding its message back
func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd != nil {
		if out := cmd(); out != nil {
			if _, ok := out.(flashExpiredMsg); !ok {
				next, _ = m.Update(out)
				m = next.(Model)
			}
		}
	}
	return m
}

func loadedModel(t *testing.T, b *fakeBackend) Model {
	t.Helper()
	flashDuration = time.Millisecond
	m := NewModel(b, ModelOptions{})
	m.input.Cursor.SetMode(cursor.CursorStatic)
	next, _ := m.Update(m.refreshJobs()())
	m = next.(Model)
	next, _ = m.Update(m.listLocal()())
	m = next.(Model)
	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func TestRefreshLoadsJobs(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)
	if b.refreshed != 1 {
		t.Fatalf("refreshed %d times, want 1", b.refreshed)
	}
	if len(m.entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(m.entries))
	}
	if m.lastSyncTime.IsZero() {
		t.Error("lastSyncTime not set")
	}
}

func TestRefreshErrorFlashes(t *testing.T) {
	b := newFakeBackend()
	b.refreshErr = errors.New("no scheduler")
	m := loadedModel(t, b)
	if !m.flashIsError || !strings.Contains(m.flashMessage, "no scheduler") {
		t.Errorf("flash = %q (error=%v)", m.flashMessage, m.flashIsError)
	}
	// The previous table is still displayed
	if len(m.entries) != 3 {
		t.Errorf("entries = %d, want 3", len(m.entries))
	}
}

func TestPeriodicSyncChecksSessionFirst(t *testing.T) {
	tests := []struct {
		name          string
		checkErr      error
		wantRefreshed int
		wantFlash     string
	}{
		{name: "live session refreshes", wantRefreshed: 2},
		{name: "lost session skips query", checkErr: errors.New("connection lost: keepalive: context deadline exceeded"), wantRefreshed: 1, wantFlash: "connection lost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			m := loadedModel(t, b)
			b.checkErr = tt.checkErr

			next, _ := m.Update(tickMsg(time.Now()))
			m = next.(Model)
			if !m.busy {
				t.Fatal("tick did not start a sync")
			}
			next, _ = m.Update(m.syncJobs()())
			m = next.(Model)

			if b.checked != 1 {
				t.Errorf("checked %d times, want 1", b.checked)
			}
			if b.refreshed != tt.wantRefreshed {
				t.Errorf("refreshed %d times, want %d", b.refreshed, tt.wantRefreshed)
			}
			if m.busy {
				t.Error("still busy after sync result")
			}
			if tt.wantFlash == "" && m.flashIsError {
				t.Errorf("unexpected error flash %q", m.flashMessage)
			}
			if tt.wantFlash != "" && !strings.Contains(m.flashMessage, tt.wantFlash) {
				t.Errorf("flash = %q, want it to mention %q", m.flashMessage, tt.wantFlash)
			}
		})
	}
}

func TestFilterKeepsHighlightedJob(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if e, _ := m.selectedJob(); e.Job.JobID != "102" {
		t.Fatalf("highlighted %q, want 102", e.Job.JobID)
	}

	m = press(t, m, runes("/"))
	if m.mode != inputFilter {
		t.Fatalf("mode = %v, want filter", m.mode)
	}
	for _, r := range "md" {
		m = press(t, m, runes(string(r)))
	}
	if m.filter != "md" {
		t.Fatalf("filter = %q, want md", m.filter)
	}
	if len(m.entries) != 2 {
		t.Fatalf("filtered entries = %d, want 2", len(m.entries))
	}
	if e, _ := m.selectedJob(); e.Job.JobID != "102" {
		t.Errorf("highlighted %q after filtering, want 102", e.Job.JobID)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != inputNone {
		t.Fatalf("mode = %v after enter", m.mode)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.filter != "" || len(m.entries) != 3 {
		t.Errorf("esc left filter %q with %d entries", m.filter, len(m.entries))
	}
}

func TestEnterSelectsJobAndDescends(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(b.selected) != 1 || b.selected[0] != "101" {
		t.Fatalf("selected = %v, want [101]", b.selected)
	}
	if m.focus != PaneRemote {
		t.Fatalf("focus = %v, want remote", m.focus)
	}
	if len(m.remoteEntries) != 3 || m.busy {
		t.Fatalf("remote entries = %d busy = %v", len(m.remoteEntries), m.busy)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(b.descended) != 1 || b.descended[0] != "traj/" {
		t.Fatalf("descended = %v, want [traj/]", b.descended)
	}

	// Files cannot be entered
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(b.descended) != 1 {
		t.Errorf("descended into a file: %v", b.descended)
	}
	if !m.flashIsError {
		t.Error("expected an error flash")
	}
}

func TestButtonKeysRunSlots(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter}) // select job 101
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}) // slurm.out

	m = press(t, m, runes("1"))
	if m.outputTitle != "tail" || m.output != "button output" {
		t.Errorf("output panel = %q / %q", m.outputTitle, m.output)
	}
	m = press(t, m, runes("0"))

	if len(b.buttons) != 2 {
		t.Fatalf("button calls = %d, want 2", len(b.buttons))
	}
	first := b.buttons[0]
	if first.family != buttons.Remote || first.index != 0 || len(first.files) != 1 || first.files[0] != "slurm.out" {
		t.Errorf("first call = %+v", first)
	}
	if b.buttons[1].index != 9 {
		t.Errorf("key 0 ran slot %d, want 9", b.buttons[1].index)
	}
	if m.outputTitle != "remote button 9" {
		t.Errorf("unlabelled slot title = %q", m.outputTitle)
	}

	// The local panel runs commander buttons
	m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != PaneLocal {
		t.Fatalf("focus = %v, want local", m.focus)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = press(t, m, runes("4"))
	last := b.buttons[len(b.buttons)-1]
	if last.family != buttons.Commander || last.index != 3 || len(last.files) != 1 || last.files[0] != "model.pdb" {
		t.Errorf("commander call = %+v", last)
	}
}

func TestParentEntryIsNotASelection(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	m = press(t, m, runes("1"))
	if len(b.buttons) != 1 || len(b.buttons[0].files) != 0 {
		t.Errorf("button call = %+v, want no files", b.buttons)
	}
	m = press(t, m, runes("d"))
	if !m.flashIsError {
		t.Error("download of ../ should flash an error")
	}
}

func TestExecCommand(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)

	m = press(t, m, runes("!"))
	if m.mode != inputExec {
		t.Fatalf("mode = %v, want exec", m.mode)
	}
	for _, r := range "ls" {
		m = press(t, m, runes(string(r)))
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(b.commands) != 1 || b.commands[0] != "ls" {
		t.Fatalf("commands = %v, want [ls]", b.commands)
	}
	if m.output != "ran ls\n" {
		t.Errorf("output = %q", m.output)
	}
}

func TestCancelWithoutJobs(t *testing.T) {
	b := newFakeBackend()
	b.entries = nil
	m := loadedModel(t, b)

	m = press(t, m, runes("c"))
	if len(b.cancelled) != 0 {
		t.Errorf("cancelled = %v", b.cancelled)
	}
	if m.flashMessage != engine.ErrNoJob.Error() {
		t.Errorf("flash = %q", m.flashMessage)
	}
}

func TestBusyBlocksActions(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)
	m.busy = true

	next, _ := m.Update(runes("s"))
	m = next.(Model)
	if b.refreshed != 1 {
		t.Errorf("refreshed %d times while busy", b.refreshed)
	}
	if m.flashMessage == "" {
		t.Error("expected a busy flash")
	}
}

func TestViewRendersPanels(t *testing.T) {
	b := newFakeBackend()
	m := loadedModel(t, b)
	out := m.View()
	for _, want := range []string{"101", "/scratch/md1", "remote:"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m.showHelp = true
	if !strings.Contains(m.View(), "Keyboard shortcuts") {
		t.Error("help overlay not shown")
	}
}

func TestButtonSlot(t *testing.T) {
	tests := []struct {
		key  string
		want int
	}{
		{"1", 0},
		{"5", 4},
		{"9", 8},
		{"0", 9},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := buttonSlot(tt.key); got != tt.want {
				t.Errorf("buttonSlot(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestScrollStart(t *testing.T) {
	tests := []struct {
		name                  string
		index, total, visible int
		want                  int
	}{
		{"fits", 3, 5, 10, 0},
		{"top", 2, 50, 10, 0},
		{"scrolled", 15, 50, 10, 6},
		{"end", 49, 50, 10, 40},
		{"no room", 5, 50, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scrollStart(tt.index, tt.total, tt.visible); got != tt.want {
				t.Errorf("scrollStart(%d, %d, %d) = %d, want %d", tt.index, tt.total, tt.visible, got, tt.want)
			}
		})
	}
}

func TestTruncateLeft(t *testing.T) {
	if got := truncateLeft("/scratch/alice/project/run1", 12); got != "...ject/run1" {
		t.Errorf("truncateLeft = %q", got)
	}
	if got := truncateLeft("/tmp", 12); got != "/tmp" {
		t.Errorf("truncateLeft short = %q", got)
	}
}
