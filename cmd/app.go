package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/osteele/slurm-watcher/internal/config"
	"github.com/osteele/slurm-watcher/internal/db"
	"github.com/osteele/slurm-watcher/internal/engine"
	"github.com/osteele/slurm-watcher/internal/logging"
	"github.com/osteele/slurm-watcher/internal/state"
)

// app bundles what every command needs
type app struct {
	cfg    *config.Config
	store  *state.Store
	db     *sql.DB
	engine *engine.Engine
	log    zerolog.Logger
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger := logging.NewDefault(level)

	statePath := config.ExpandHome(cfg.StateFile)
	if statePath == "" {
		if statePath, err = state.DefaultPath(); err != nil {
			return nil, fmt.Errorf("locate state file: %w", err)
		}
	}
	store := state.NewStore(statePath, state.Options{
		SavePassword: cfg.SavePassword,
		Capacities: state.Capacities{
			Remote:    cfg.RemoteButtons,
			Local:     cfg.LocalButtons,
			Commander: cfg.CommanderButtons,
		},
		Logger: logger,
	})

	database, err := db.Open()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	e, err := engine.New(engine.Options{
		Config: cfg,
		Store:  store,
		DB:     database,
		Logger: logger,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: store, db: database, engine: e, log: logger}, nil
}

func (a *app) Close() {
	if err := a.engine.Disconnect(); err != nil {
		a.log.Debug().Err(err).Msg("disconnect")
	}
	a.db.Close()
}

// selectAccount resolves --account against the saved accounts. An unknown
// login@host[:port] becomes a new account using --jm-dir.
func (a *app) selectAccount() (state.Account, error) {
	accounts := a.engine.Accounts()
	if accountFlag == "" {
		if len(accounts) == 0 {
			return state.Account{}, errors.New("no saved accounts; pass --account login@host --jm-dir <dir>")
		}
		return a.withJobDir(accounts[0]), nil
	}
	if acct, ok := accounts.Find(accountFlag); ok {
		return a.withJobDir(acct), nil
	}
	acct, err := state.ParseAccount(accountFlag)
	if err != nil {
		return state.Account{}, fmt.Errorf("no saved account matches %q: %w", accountFlag, err)
	}
	acct.JobManagerDir = jobDirFlag
	return acct, nil
}

func (a *app) withJobDir(acct state.Account) state.Account {
	if jobDirFlag != "" {
		acct.JobManagerDir = jobDirFlag
	}
	return acct
}

// connect selects an account, prompts for a missing password and opens
// the session
func (a *app) connect(ctx context.Context) (state.Account, error) {
	acct, err := a.selectAccount()
	if err != nil {
		return acct, err
	}
	if acct.Password == "" {
		pw, err := promptPassword(acct)
		if err != nil {
			return acct, err
		}
		acct.Password = pw
	}
	if err := a.engine.Connect(ctx, acct); err != nil {
		if !errors.Is(err, engine.ErrAccountNotSaved) {
			return acct, fmt.Errorf("cannot connect to %s: %w", acct, err)
		}
		a.log.Warn().Err(err).Str("account", acct.String()).Msg("continuing without saving the account")
	}
	return acct, nil
}

func promptPassword(acct state.Account) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no saved password for %s and stdin is not a terminal", acct)
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", acct)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// withConnection runs fn with an open app and session
func withConnection(fn func(ctx context.Context, a *app) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if _, err := a.connect(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}
