// Package buttons manages the fixed-capacity tables of saved command
// templates and executes them against the remote session or locally.
package buttons

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/osteele/slurm-watcher/internal/state"
)

// Placeholder is replaced by the selected file when a template runs
const Placeholder = "$1"

// Family identifies one table of buttons
type Family int

const (
	Remote Family = iota
	Local
	Commander
)

// Families lists every family in display order
var Families = []Family{Remote, Local, Commander}

func (f Family) String() string {
	switch f {
	case Remote:
		return "remote"
	case Local:
		return "local"
	case Commander:
		return "commander"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily converts a family name
func ParseFamily(s string) (Family, error) {
	for _, f := range Families {
		if f.String() == strings.ToLower(s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown button family %q (want remote, local or commander)", s)
}

// IsLocal reports whether the family runs on this machine
func (f Family) IsLocal() bool {
	return f == Local || f == Commander
}

var (
	ErrNoCommand         = errors.New("no command for this button")
	ErrNotConnected      = errors.New("not connected: connect to a host before running a command")
	ErrNoDirectory       = errors.New("please select a directory")
	ErrNoFile            = errors.New("please select a file to execute")
	ErrSelectionCount    = errors.New("select exactly one file")
	ErrLocalExecDisabled = errors.New("local commands are disabled (set allow_local_exec: true in the config file)")
	ErrShellSyntax       = errors.New("local commands cannot use shell operators")
)

// SlotError is returned for an index outside the family's capacity
type SlotError struct {
	Family Family
	Index  int
	Size   int
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("%s button %d out of range (0-%d)", e.Family, e.Index, e.Size-1)
}

// Persister writes the full state after every mutation
type Persister interface {
	Save(st *state.State) error
}

// RemoteRunner is the session used by remote buttons
type RemoteRunner interface {
	Connected() bool
	Run(ctx context.Context, dir, command string) (string, error)
}

// LocalRunFunc runs argv in dir and returns its combined output
type LocalRunFunc func(ctx context.Context, dir string, argv []string) (string, error)

// Selection is the listing state a button runs against
type Selection struct {
	Dir   string
	Files []string
}

// Result describes an executed button
type Result struct {
	Family  Family
	Index   int
	Dir     string
	Command string
	Output  string
}

// Options configure a Registry
type Options struct {
	Persister      Persister
	Remote         RemoteRunner
	AllowLocalExec bool
	// LocalRun overrides process execution
	LocalRun LocalRunFunc
	Logger   zerolog.Logger
}

// Registry is the (family, index) table of templates. The slot arrays
// live in the shared state document, so edits are persisted with it.
// A Registry is not safe for concurrent use.
type Registry struct {
	st   *state.State
	opts Options
	log  zerolog.Logger
}

// NewRegistry returns a registry over st's button tables
func NewRegistry(st *state.State, opts Options) *Registry {
	if opts.LocalRun == nil {
		opts.LocalRun = runLocal
	}
	return &Registry{st: st, opts: opts, log: opts.Logger}
}

func (r *Registry) slots(f Family) *[]state.Template {
	switch f {
	case Remote:
		return &r.st.CustomButtons
	case Local:
		return &r.st.CustomButtonsLocal
	default:
		return &r.st.LocalCommanderCustomButtons
	}
}

// List returns a copy of a family's slots
func (r *Registry) List(f Family) []state.Template {
	return append([]state.Template(nil), *r.slots(f)...)
}

// Get returns one slot
func (r *Registry) Get(f Family, index int) (state.Template, error) {
	slots := *r.slots(f)
	if index < 0 || index >= len(slots) {
		return state.Template{}, &SlotError{Family: f, Index: index, Size: len(slots)}
	}
	return slots[index], nil
}

// SetTemplate stores a template and persists the state before returning
func (r *Registry) SetTemplate(f Family, index int, label, body string) error {
	slots := r.slots(f)
	if index < 0 || index >= len(*slots) {
		return &SlotError{Family: f, Index: index, Size: len(*slots)}
	}
	prev := (*slots)[index]
	(*slots)[index] = state.Template{Label: label, Body: body}
	if r.opts.Persister != nil {
		if err := r.opts.Persister.Save(r.st); err != nil {
			(*slots)[index] = prev
			return fmt.Errorf("save buttons: %w", err)
		}
	}
	r.log.Debug().Stringer("family", f).Int("index", index).Str("label", label).Msg("button set")
	return nil
}

// Execute validates the preconditions in order and then runs the
// template. No command is started when a precondition fails.
func (r *Registry) Execute(ctx context.Context, f Family, index int, sel Selection) (Result, error) {
	res := Result{Family: f, Index: index, Dir: sel.Dir}

	slots := *r.slots(f)
	if index < 0 || index >= len(slots) || slots[index].IsEmpty() {
		return res, ErrNoCommand
	}
	body := slots[index].Body

	if f == Remote && (r.opts.Remote == nil || !r.opts.Remote.Connected()) {
		return res, ErrNotConnected
	}

	needsFile := strings.Contains(body, Placeholder)
	if sel.Dir == "" && (f == Remote || needsFile) {
		return res, ErrNoDirectory
	}

	var file string
	if needsFile {
		switch len(sel.Files) {
		case 0:
			return res, ErrNoFile
		case 1:
			file = strings.TrimSuffix(sel.Files[0], "/")
		default:
			return res, ErrSelectionCount
		}
		if f == Commander {
			file = filepath.Join(sel.Dir, file)
		}
	}

	if f == Remote {
		res.Command = strings.ReplaceAll(body, Placeholder, file)
		out, err := r.opts.Remote.Run(ctx, sel.Dir, res.Command)
		res.Output = out
		return res, err
	}

	if !r.opts.AllowLocalExec {
		return res, ErrLocalExecDisabled
	}
	argv, err := Argv(body, file)
	if err != nil {
		return res, err
	}
	res.Command = strings.Join(argv, " ")
	r.log.Info().Stringer("family", f).Int("index", index).Strs("argv", argv).Msg("running local command")
	out, err := r.opts.LocalRun(ctx, sel.Dir, argv)
	res.Output = out
	return res, err
}

// Argv splits a local template into arguments with shell quoting rules
// and substitutes file into each argument. Operators such as ; and | are
// rejected since no shell is involved.
func Argv(body, file string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if p.Position >= 0 {
		return nil, ErrShellSyntax
	}
	if len(args) == 0 {
		return nil, ErrNoCommand
	}
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, Placeholder, file)
	}
	return args, nil
}

func runLocal(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("run %s: %w", argv[0], err)
	}
	return out.String(), nil
}
