package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/osteele/slurm-watcher/internal/browse"
	"github.com/osteele/slurm-watcher/internal/buttons"
	"github.com/osteele/slurm-watcher/internal/engine"
	"github.com/osteele/slurm-watcher/internal/jobs"
	"github.com/osteele/slurm-watcher/internal/session"
	"github.com/osteele/slurm-watcher/internal/state"
)

var flashDuration = 4 * time.Second

// Backend is what the TUI drives; *engine.Engine implements it
type Backend interface {
	Status() engine.Status
	Check(ctx context.Context) error
	RefreshJobs(ctx context.Context) (*jobs.Snapshot, error)
	Jobs(filter string) []jobs.Entry
	CancelJob(ctx context.Context, jobID string) (string, error)
	ForgetJob(ctx context.Context, jobID string) (string, error)
	SelectJob(ctx context.Context, jobID string) ([]browse.Entry, error)
	ListRemote(ctx context.Context) ([]browse.Entry, error)
	DescendRemote(ctx context.Context, entry string) ([]browse.Entry, error)
	ListLocal() ([]browse.Entry, error)
	DescendLocal(entry string) ([]browse.Entry, error)
	Download(ctx context.Context, name string) (string, int64, error)
	RunCommand(ctx context.Context, command string) (string, error)
	RunButton(ctx context.Context, f buttons.Family, index int, files ...string) (buttons.Result, error)
	Buttons(f buttons.Family) []state.Template
	AddBookmark() (bool, error)
}

// Pane identifies the focused panel
type Pane int

const (
	PaneJobs Pane = iota
	PaneRemote
	PaneLocal
)

// inputMode is what the text input is collecting
type inputMode int

const (
	inputNone inputMode = iota
	inputFilter
	inputExec
)

// Key bindings
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Enter    key.Binding
	Tab      key.Binding
	Escape   key.Binding
	Filter   key.Binding
	Refresh  key.Binding
	Cancel   key.Binding
	Forget   key.Binding
	Download key.Binding
	Exec     key.Binding
	Bookmark key.Binding
	Button   key.Binding
	Suspend  key.Binding
	Quit     key.Binding
	Help     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch panel"),
	),
	Escape: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "status"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "scancel"),
	),
	Forget: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "forget"),
	),
	Download: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "download"),
	),
	Exec: key.NewBinding(
		key.WithKeys("!"),
		key.WithHelp("!", "run command"),
	),
	Bookmark: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "bookmark"),
	),
	Button: key.NewBinding(
		key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9", "0"),
		key.WithHelp("1-0", "button"),
	),
	Suspend: key.NewBinding(
		key.WithKeys("ctrl+z"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
}

// Messages. Each result carries the engine status read after the call,
// since reading it from View would wait for calls in flight.
type jobsRefreshedMsg struct {
	status engine.Status
	err    error
}

type listingMsg struct {
	status  engine.Status
	pane    Pane
	entries []browse.Entry
	err     error
}

type outputMsg struct {
	status engine.Status
	title  string
	output string
	err    error
	// refresh re-reads the job table afterwards
	refresh bool
}

type tickMsg time.Time
type flashExpiredMsg struct{}

// Model is the bubbletea model
type Model struct {
	backend Backend
	status  engine.Status

	// Job table
	filter   string
	entries  []jobs.Entry
	jobIndex int

	// Directory panels
	remoteEntries []browse.Entry
	remoteIndex   int
	localEntries  []browse.Entry
	localIndex    int

	focus Pane

	// Output panel
	outputTitle string
	output      string

	// Input line
	mode  inputMode
	input textinput.Model

	// UI State
	flashMessage string
	flashIsError bool
	flashExpiry  time.Time
	busy         bool
	showHelp     bool

	// Layout
	width  int
	height int

	// Background refresh
	syncInterval time.Duration
	lastSyncTime time.Time
}

// ModelOptions contains configuration for the TUI model
type ModelOptions struct {
	// SyncInterval re-reads the job table periodically (0 disables)
	SyncInterval time.Duration
}

// NewModel creates a new TUI model
func NewModel(backend Backend, opts ModelOptions) Model {
	input := textinput.New()
	input.Prompt = ""
	input.Width = 60
	input.CharLimit = 512

	return Model{
		backend:      backend,
		status:       backend.Status(),
		input:        input,
		syncInterval: opts.SyncInterval,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshJobs(), m.listLocal()}
	if m.syncInterval > 0 {
		cmds = append(cmds, m.startSyncTicker())
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.handleInputKeyPress(msg)
		}
		return m.handleKeyPress(msg)

	case jobsRefreshedMsg:
		m.busy = false
		m.status = msg.status
		m.lastSyncTime = time.Now()
		m.reloadEntries()
		if msg.err != nil {
			cmd := m.setFlash(fmt.Sprintf("Status error: %v", msg.err), true)
			return m, cmd
		}
		return m, nil

	case listingMsg:
		m.busy = false
		m.status = msg.status
		if msg.err != nil {
			cmd := m.setFlash(msg.err.Error(), true)
			return m, cmd
		}
		if msg.pane == PaneLocal {
			m.localEntries = msg.entries
			m.localIndex = 0
		} else {
			m.remoteEntries = msg.entries
			m.remoteIndex = 0
		}
		return m, nil

	case outputMsg:
		m.busy = false
		m.status = msg.status
		m.outputTitle = msg.title
		m.output = msg.output
		var cmds []tea.Cmd
		if msg.err != nil {
			cmds = append(cmds, m.setFlash(msg.err.Error(), true))
		}
		if msg.refresh {
			m.reloadEntries()
		}
		return m, tea.Batch(cmds...)

	case tickMsg:
		cmds := []tea.Cmd{m.startSyncTicker()}
		if !m.busy && m.status.State == session.StateConnected {
			m.busy = true
			cmds = append(cmds, m.syncJobs())
		}
		return m, tea.Batch(cmds...)

	case flashExpiredMsg:
		if time.Now().After(m.flashExpiry) {
			m.flashMessage = ""
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Help overlay - dismiss with ? or Esc
	if m.showHelp {
		if key.Matches(msg, keys.Help) || key.Matches(msg, keys.Escape) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Suspend):
		return m, tea.Suspend

	case key.Matches(msg, keys.Tab):
		m.focus = (m.focus + 1) % 3
		return m, nil

	case key.Matches(msg, keys.Up):
		m.moveCursor(-1)
		return m, nil

	case key.Matches(msg, keys.Down):
		m.moveCursor(1)
		return m, nil

	case key.Matches(msg, keys.Escape):
		if m.filter != "" {
			m.filter = ""
			m.reloadEntries()
		}
		return m, nil

	case key.Matches(msg, keys.Filter):
		m.mode = inputFilter
		m.input.SetValue(m.filter)
		m.input.Placeholder = "job ID, directory, script or comment"
		return m, m.input.Focus()

	case key.Matches(msg, keys.Exec):
		m.mode = inputExec
		m.input.SetValue("")
		m.input.Placeholder = "command to run in the remote directory"
		return m, m.input.Focus()
	}

	if m.busy {
		cmd := m.setFlash("Busy, please wait...", false)
		return m, cmd
	}

	switch {
	case key.Matches(msg, keys.Refresh):
		m.busy = true
		return m, m.refreshJobs()

	case key.Matches(msg, keys.Enter):
		return m.open()

	case key.Matches(msg, keys.Cancel):
		e, ok := m.selectedJob()
		if !ok {
			cmd := m.setFlash(engine.ErrNoJob.Error(), true)
			return m, cmd
		}
		m.busy = true
		return m, m.cancelJob(e.Job.JobID)

	case key.Matches(msg, keys.Forget):
		e, ok := m.selectedJob()
		if !ok {
			cmd := m.setFlash(engine.ErrNoJob.Error(), true)
			return m, cmd
		}
		m.busy = true
		return m, m.forgetJob(e.Job.JobID)

	case key.Matches(msg, keys.Download):
		name, ok := m.selectedRemoteFile()
		if !ok {
			cmd := m.setFlash("Please select a file to download", true)
			return m, cmd
		}
		m.busy = true
		return m, m.download(name)

	case key.Matches(msg, keys.Bookmark):
		added, err := m.backend.AddBookmark()
		if err != nil {
			cmd := m.setFlash(err.Error(), true)
			return m, cmd
		}
		if !added {
			cmd := m.setFlash("Already bookmarked", false)
			return m, cmd
		}
		cmd := m.setFlash("Bookmarked "+m.status.LocalDir, false)
		return m, cmd

	case key.Matches(msg, keys.Button):
		return m.runButton(buttonSlot(msg.String()))
	}

	return m, nil
}

func (m Model) handleInputKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		value := m.input.Value()
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()

		switch mode {
		case inputFilter:
			m.filter = value
			m.reloadEntries()
			return m, nil
		case inputExec:
			if strings.TrimSpace(value) == "" {
				return m, nil
			}
			m.busy = true
			return m, m.runCommand(value)
		}
		return m, nil
	}

	// Forward other keys to the input
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.mode == inputFilter {
		// Filter as you type
		m.filter = m.input.Value()
		m.reloadEntries()
	}
	return m, cmd
}

// open acts on the highlighted row of the focused panel
func (m Model) open() (tea.Model, tea.Cmd) {
	switch m.focus {
	case PaneJobs:
		e, ok := m.selectedJob()
		if !ok {
			return m, nil
		}
		m.busy = true
		m.focus = PaneRemote
		return m, m.selectJob(e.Job.JobID)
	case PaneRemote:
		if m.remoteIndex >= len(m.remoteEntries) {
			return m, nil
		}
		entry := m.remoteEntries[m.remoteIndex]
		if !entry.IsDir {
			cmd := m.setFlash(browse.ErrNotDirectory.Error(), true)
			return m, cmd
		}
		m.busy = true
		return m, m.descendRemote(entry.Name)
	case PaneLocal:
		if m.localIndex >= len(m.localEntries) {
			return m, nil
		}
		entry := m.localEntries[m.localIndex]
		if !entry.IsDir {
			cmd := m.setFlash(browse.ErrNotDirectory.Error(), true)
			return m, cmd
		}
		entries, err := m.backend.DescendLocal(entry.Name)
		if err != nil {
			cmd := m.setFlash(err.Error(), true)
			return m, cmd
		}
		m.localEntries = entries
		m.localIndex = 0
		m.status = m.backend.Status()
		return m, nil
	}
	return m, nil
}

// runButton runs a slot of the family matching the focused panel: remote
// buttons from the job and remote panels, commander buttons from the
// local panel
func (m Model) runButton(slot int) (tea.Model, tea.Cmd) {
	family := buttons.Remote
	var files []string
	switch m.focus {
	case PaneLocal:
		family = buttons.Commander
		if name, ok := m.selectedLocalFile(); ok {
			files = []string{name}
		}
	default:
		if name, ok := m.selectedRemoteFile(); ok {
			files = []string{name}
		}
	}

	templates := m.backend.Buttons(family)
	label := fmt.Sprintf("%s button %d", family, slot)
	if slot < len(templates) && templates[slot].Label != "" {
		label = templates[slot].Label
	}
	m.busy = true
	return m, func() tea.Msg {
		res, err := m.backend.RunButton(context.Background(), family, slot, files...)
		return outputMsg{status: m.backend.Status(), title: label, output: res.Output, err: err}
	}
}

func buttonSlot(k string) int {
	if k == "0" {
		return 9
	}
	return int(k[0] - '1')
}

func (m *Model) moveCursor(delta int) {
	clamp := func(i, n int) int {
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		return i
	}
	switch m.focus {
	case PaneJobs:
		m.jobIndex = clamp(m.jobIndex+delta, len(m.entries))
	case PaneRemote:
		m.remoteIndex = clamp(m.remoteIndex+delta, len(m.remoteEntries))
	case PaneLocal:
		m.localIndex = clamp(m.localIndex+delta, len(m.localEntries))
	}
}

// reloadEntries re-reads the filtered job table, keeping the highlighted job
func (m *Model) reloadEntries() {
	var current string
	if e, ok := m.selectedJob(); ok {
		current = e.Job.JobID
	}
	m.entries = m.backend.Jobs(m.filter)
	m.jobIndex = 0
	for i, e := range m.entries {
		if e.Job.JobID == current {
			m.jobIndex = i
			break
		}
	}
}

func (m Model) selectedJob() (jobs.Entry, bool) {
	if m.jobIndex < 0 || m.jobIndex >= len(m.entries) {
		return jobs.Entry{}, false
	}
	return m.entries[m.jobIndex], true
}

func (m Model) selectedRemoteFile() (string, bool) {
	if m.remoteIndex >= len(m.remoteEntries) {
		return "", false
	}
	e := m.remoteEntries[m.remoteIndex]
	if e.Name == browse.ParentEntry {
		return "", false
	}
	return e.Name, true
}

func (m Model) selectedLocalFile() (string, bool) {
	if m.localIndex >= len(m.localEntries) {
		return "", false
	}
	e := m.localEntries[m.localIndex]
	if e.Name == browse.ParentEntry {
		return "", false
	}
	return e.Name, true
}

func (m *Model) setFlash(msg string, isError bool) tea.Cmd {
	m.flashMessage = msg
	m.flashIsError = isError
	m.flashExpiry = time.Now().Add(flashDuration)
	return tea.Tick(flashDuration, func(t time.Time) tea.Msg {
		return flashExpiredMsg{}
	})
}

// Commands

func (m Model) startSyncTicker() tea.Cmd {
	return tea.Tick(m.syncInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshJobs() tea.Cmd {
	return func() tea.Msg {
		_, err := m.backend.RefreshJobs(context.Background())
		return jobsRefreshedMsg{status: m.backend.Status(), err: err}
	}
}

// syncJobs is the periodic refresh: it confirms the session is alive
// before querying the job manager
func (m Model) syncJobs() tea.Cmd {
	return func() tea.Msg {
		if err := m.backend.Check(context.Background()); err != nil {
			return jobsRefreshedMsg{status: m.backend.Status(), err: err}
		}
		_, err := m.backend.RefreshJobs(context.Background())
		return jobsRefreshedMsg{status: m.backend.Status(), err: err}
	}
}

func (m Model) selectJob(jobID string) tea.Cmd {
	return func() tea.Msg {
		entries, err := m.backend.SelectJob(context.Background(), jobID)
		return listingMsg{status: m.backend.Status(), pane: PaneRemote, entries: entries, err: err}
	}
}

func (m Model) descendRemote(entry string) tea.Cmd {
	return func() tea.Msg {
		entries, err := m.backend.DescendRemote(context.Background(), entry)
		return listingMsg{status: m.backend.Status(), pane: PaneRemote, entries: entries, err: err}
	}
}

func (m Model) listLocal() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.backend.ListLocal()
		return listingMsg{status: m.backend.Status(), pane: PaneLocal, entries: entries, err: err}
	}
}

func (m Model) cancelJob(jobID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.backend.CancelJob(context.Background(), jobID)
		return outputMsg{status: m.backend.Status(), title: "scancel " + jobID, output: out, err: err}
	}
}

func (m Model) forgetJob(jobID string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.backend.ForgetJob(context.Background(), jobID)
		return outputMsg{status: m.backend.Status(), title: "forget " + jobID, output: out, err: err, refresh: true}
	}
}

func (m Model) download(name string) tea.Cmd {
	return func() tea.Msg {
		localPath, n, err := m.backend.Download(context.Background(), name)
		msg := outputMsg{status: m.backend.Status(), title: "download " + name, err: err}
		if err == nil {
			msg.output = fmt.Sprintf("Saved %s (%d bytes)", localPath, n)
		}
		return msg
	}
}

func (m Model) runCommand(command string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.backend.RunCommand(context.Background(), command)
		return outputMsg{status: m.backend.Status(), title: command, output: out, err: err}
	}
}

// View renders the UI
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Calculate panel heights
	jobsHeight := int(float64(m.height) * 0.45)
	lowerHeight := m.height - jobsHeight - 6

	lower := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderDirectory(lowerHeight),
		m.renderOutput(lowerHeight),
	)

	mainView := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderJobList(jobsHeight),
		lower,
		m.renderInputLine(),
		m.renderStatusBar(),
	)

	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return mainView
}

func (m Model) renderHeader() string {
	st := m.status
	conn := disconnectedStyle.Render(st.State.String())
	if st.State == session.StateConnected {
		conn = connectedStyle.Render(st.Account.String())
	}
	line := " " + titleStyle.Render("Slurm Watcher") + "  " + conn
	if m.filter != "" {
		line += dimStyle.Render(fmt.Sprintf("  filter: %q", m.filter))
	}
	if !m.lastSyncTime.IsZero() {
		line += dimStyle.Render("  updated " + m.lastSyncTime.Format("15:04:05"))
	}
	return line
}

func (m Model) panel(p Pane) lipgloss.Style {
	if m.focus == p {
		return focusedPanelStyle
	}
	return panelStyle
}

func (m Model) renderJobList(height int) string {
	var rows []string

	// Header
	header := fmt.Sprintf(" %-10s %-10s %-6s %-10s %-14s %-30s %s",
		"GROUP", "JOB ID", "ST", "TIME", "SCRIPT", "DIRECTORY", "COMMENT")
	rows = append(rows, headerStyle.Render(header))

	contentHeight := height - 3 // Account for borders and header
	start := scrollStart(m.jobIndex, len(m.entries), contentHeight)
	for i := start; i < len(m.entries) && i-start < contentHeight; i++ {
		e := m.entries[i]
		line := fmt.Sprintf(" %-10s %-10s %-6s %-10s %-14s %-30s %s",
			truncate(e.Group, 10), truncate(e.Job.JobID, 10), truncate(e.Job.Status, 6),
			truncate(e.Job.Time, 10), truncate(e.Job.ScriptFile, 14),
			truncateLeft(e.Job.RunningDir, 30), e.Job.Comment)

		if i == m.jobIndex && m.focus == PaneJobs {
			line = selectedStyle.Width(m.width - 6).Render(line)
		} else {
			line = styleForStatus(e.Job.Status).Render(line)
		}
		rows = append(rows, line)
	}
	if len(m.entries) == 0 {
		rows = append(rows, dimStyle.Render(" No jobs (press s to query the scheduler)"))
	}

	return m.panel(PaneJobs).Width(m.width - 2).Height(height).Render(strings.Join(rows, "\n"))
}

func (m Model) renderDirectory(height int) string {
	width := m.width/2 - 2
	st := m.status

	pane, dir, entries, index := PaneRemote, st.RemoteDir, m.remoteEntries, m.remoteIndex
	if m.focus == PaneLocal {
		pane, dir, entries, index = PaneLocal, st.LocalDir, m.localEntries, m.localIndex
	}

	label := "remote"
	if pane == PaneLocal {
		label = "local"
	}
	rows := []string{headerStyle.Render(label+": ") + truncateLeft(dir, width-12)}

	contentHeight := height - 3
	start := scrollStart(index, len(entries), contentHeight)
	for i := start; i < len(entries) && i-start < contentHeight; i++ {
		e := entries[i]
		line := truncate(e.Name, width-4)
		switch {
		case i == index && m.focus == pane:
			line = selectedStyle.Render(line)
		case e.IsDir:
			line = dirStyle.Render(line)
		}
		rows = append(rows, line)
	}

	return m.panel(pane).Width(width).Height(height).Render(strings.Join(rows, "\n"))
}

func (m Model) renderOutput(height int) string {
	width := m.width - m.width/2 - 2
	title := "output"
	if m.outputTitle != "" {
		title = truncate(m.outputTitle, width-6)
	}
	rows := []string{headerStyle.Render(title)}

	lines := strings.Split(strings.TrimRight(m.output, "\n"), "\n")
	contentHeight := height - 3
	// Show the tail of long output
	if len(lines) > contentHeight && contentHeight > 0 {
		lines = lines[len(lines)-contentHeight:]
	}
	for _, l := range lines {
		rows = append(rows, truncate(l, width-4))
	}

	return panelStyle.Width(width).Height(height).Render(strings.Join(rows, "\n"))
}

func (m Model) renderInputLine() string {
	switch m.mode {
	case inputFilter:
		return " filter: " + m.input.View()
	case inputExec:
		return " $ " + m.input.View()
	}
	if m.flashMessage == "" {
		return ""
	}

	var style lipgloss.Style
	if m.flashIsError {
		style = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).  // White text
			Background(lipgloss.Color("124")). // Dark red background
			Bold(true).
			Padding(0, 1)
	} else {
		style = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).  // White text
			Background(lipgloss.Color("240")). // Dark gray background
			Padding(0, 1)
	}
	return " " + style.Render(m.flashMessage)
}

func (m Model) renderStatusBar() string {
	help := helpStyle.Render("?:help q:quit tab:panel enter:open /:filter s:status c:scancel x:forget d:download !:run 1-0:buttons")

	if m.busy {
		help = syncingStyle.Render("⟳ ") + help
	}

	// Right-align the help text
	gap := m.width - lipgloss.Width(help) - 2
	if gap < 0 {
		gap = 0
	}

	return " " + strings.Repeat(" ", gap) + help
}

func (m Model) renderHelpOverlay() string {
	bindings := []key.Binding{
		keys.Up, keys.Down, keys.Tab, keys.Enter, keys.Filter, keys.Escape,
		keys.Refresh, keys.Cancel, keys.Forget, keys.Download, keys.Exec,
		keys.Bookmark, keys.Button, keys.Quit, keys.Help,
	}
	var lines []string
	lines = append(lines, titleStyle.Render("Keyboard shortcuts"), "")
	for _, b := range bindings {
		h := b.Help()
		lines = append(lines, fmt.Sprintf("  %-8s %s", h.Key, h.Desc))
	}
	lines = append(lines, "",
		dimStyle.Render("Buttons run remote slots from the job and remote panels"),
		dimStyle.Render("and commander slots from the local panel."))

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 3)

	return lipgloss.Place(
		m.width, m.height,
		lipgloss.Center, lipgloss.Center,
		modalStyle.Render(strings.Join(lines, "\n")),
	)
}

// scrollStart returns the first visible row so that index stays on screen
func scrollStart(index, total, visible int) int {
	if visible <= 0 || total <= visible || index < visible {
		return 0
	}
	start := index - visible + 1
	if start > total-visible {
		start = total - visible
	}
	return start
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// truncateLeft keeps the end of a path, which is the informative part
func truncateLeft(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
