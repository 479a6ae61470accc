// Package main is the convo CLI entry point. Run without arguments it
// starts the interactive chat; subcommands cover auth and account
// housekeeping for scripts and quick checks.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"convo/cmd/convo/chat"
	"convo/internal/api"
	"convo/internal/auth"
	"convo/internal/config"
	"convo/internal/logging"
	"convo/internal/session"
	"convo/internal/store"
	"convo/internal/types"
	"convo/internal/usage"
)

var (
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "convo",
	Short: "convo - terminal client for the convo assistant",
	Long: `convo is a terminal client for the convo conversational assistant.

Chats are stored locally and reconciled with the server, so history and
navigation work instantly and offline.

Run without arguments to start the interactive chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive chat has its own UI; a console logger would
		// fight the alt screen.
		if cmd.Use == "convo" && cmd.CalledAs() == "convo" {
			return nil
		}
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything the commands and the TUI share.
type app struct {
	cfg     *config.Config
	local   *store.LocalStore
	tokens  *auth.TokenManager
	tracker *usage.Tracker
}

// buildApp loads config and opens the state directory. Every command path
// starts here.
func buildApp() (*app, error) {
	dir, err := config.StateDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(dir); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	local, err := store.NewLocalStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open state dir: %w", err)
	}
	tokens, err := auth.NewTokenManager(dir, cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	tracker, err := usage.NewTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("open usage tracker: %w", err)
	}
	return &app{cfg: cfg, local: local, tokens: tokens, tracker: tracker}, nil
}

// client builds the REST client over the stored credentials.
func (a *app) client() *api.Client {
	timeout := time.Duration(a.cfg.RequestTimeoutSeconds) * time.Second
	return api.NewClient(a.cfg.APIBaseURL, a.tokens, timeout)
}

func runInteractiveChat() error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	var (
		remote    session.Remote
		responder session.Responder
	)
	online := a.tokens.Authenticated()
	if online {
		client := a.client()
		remote = client
		responder = &session.APIResponder{Client: client}
	} else {
		// Offline mode still browses and edits local history; sends
		// fail with a clear message instead of a network error.
		responder = offlineResponder{}
	}

	manager := session.NewManager(a.local, remote, responder, a.tracker)

	model := chat.New(chat.Options{
		Manager: manager,
		Tracker: a.tracker,
		Local:   a.local,
		Remote:  online,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())

	// A second convo process (or a sync job) rewriting the chat blob shows
	// up live instead of requiring a restart.
	if w, err := a.local.Watch(func() {
		manager.ReloadLocal()
		p.Send(chat.ExternalChangeMsg{})
	}); err == nil {
		defer w.Stop()
	} else {
		logging.StoreWarn("state watcher unavailable: %v", err)
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}

	// Flush the debounced usage counters before exit.
	return a.tracker.Save()
}

// offlineResponder rejects sends when no account is logged in.
type offlineResponder struct{}

func (offlineResponder) Reply(_ context.Context, _, _ string) (string, []types.Source, error) {
	return "", nil, auth.ErrNotAuthenticated
}
