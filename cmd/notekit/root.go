package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/notekit"
	"github.com/aretw0/notekit/internal/config"
	"github.com/aretw0/notekit/pkg/adapters/account"
	"github.com/aretw0/notekit/pkg/core"
)

var (
	verbose    bool
	jsonOutput bool
	vaultFlag  string
	cfgFile    string

	logLevel = new(slog.LevelVar)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notekit",
	Short: "Personal notes with pinning, search and a recycle bin",
	Long: `notekit keeps short notes per account in a local vault of Markdown files,
in memory, or in PostgreSQL. Notes can be pinned, searched, soft-deleted into
a recycle bin, restored or purged, and watched live.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logLevel.Set(slog.LevelDebug)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault directory (default: nearest directory containing .notekit)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: <vault>/.notekit/notekit.yaml)")
}

// env is the resolved vault, configuration and account service of one
// invocation.
type env struct {
	vault    string
	cfg      *config.Config
	accounts *account.Service
}

// loadEnv resolves the vault and loads its configuration.
func loadEnv() (*env, error) {
	vault := vaultFlag
	if vault == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if root, err := notekit.FindRoot(cwd); err == nil {
			vault = root
		}
	}

	cfg, err := config.Load(vault, cfgFile)
	if err != nil {
		return nil, err
	}
	if !verbose {
		logLevel.Set(cfg.Level())
	}
	if vault == "" {
		vault = cfg.Vault
	}
	if vault == "" {
		return nil, errors.New("no vault found (run `notekit init` or pass --vault)")
	}
	if cfg.SessionSecret == "" {
		return nil, &config.Error{Key: "session_secret", Msg: "not set (run `notekit init`)"}
	}

	accounts, err := account.New(account.Config{
		Path:      filepath.Join(vault, config.SystemDir, "accounts.yaml"),
		Secret:    []byte(cfg.SessionSecret),
		Providers: cfg.ProviderSecrets(),
		Logger:    slog.Default(),
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("environment loaded", "vault", vault, "adapter", cfg.Adapter, "config", cfg.File)
	return &env{vault: vault, cfg: cfg, accounts: accounts}, nil
}

// session returns the signed-in session or an AuthError.
func (e *env) session(ctx context.Context) (core.Session, error) {
	sess, ok := e.accounts.Current(ctx)
	if !ok {
		return core.Session{}, fmt.Errorf("%w (run `notekit signin`)", core.ErrUnauthenticated)
	}
	return sess, nil
}

// service opens the configured store. Close it with notekit.Close.
func (e *env) service(ctx context.Context, watch bool) (*core.Service, error) {
	return notekit.New(ctx, e.vault,
		notekit.WithAdapter(e.cfg.Adapter),
		notekit.WithDatabaseURL(e.cfg.DatabaseURL),
		notekit.WithEventBuffer(e.cfg.EventBuffer),
		notekit.WithWatch(watch),
		notekit.WithLogger(slog.Default()),
	)
}

// withSession runs fn with a signed-in session and an open service.
func withSession(fn func(ctx context.Context, svc *core.Service, sess core.Session) error) error {
	ctx := context.Background()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	sess, err := e.session(ctx)
	if err != nil {
		return err
	}
	svc, err := e.service(ctx, false)
	if err != nil {
		return err
	}
	defer notekit.Close(svc)
	return fn(ctx, svc, sess)
}

// report prints the result of an intent and turns a failure into an error.
func report(w io.Writer, res core.Result, okMsg string) error {
	if jsonOutput {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else if res.OK {
		switch {
		case res.NoOp:
			fmt.Fprintln(w, "Nothing to save: title and content are blank.")
		default:
			fmt.Fprintln(w, okMsg)
		}
	}
	if !res.OK {
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
