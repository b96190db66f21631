package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notekit"
	"github.com/aretw0/notekit/internal/config"
)

var (
	initAdapter     string
	initDatabaseURL string
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a notekit vault",
	Long: `Initialize a vault in the current directory (or --vault): creates the
.notekit system directory and a notekit.yaml with a fresh session secret.
An existing configuration is kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vault := vaultFlag
		if vault == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			vault = cwd
		}

		path := config.Path(vault)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("generate session secret: %w", err)
			}
			cfg := &config.Config{
				Adapter:       initAdapter,
				DatabaseURL:   initDatabaseURL,
				SessionSecret: hex.EncodeToString(secret),
				LogLevel:      "info",
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Write(path, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
		}

		vaultFlag = vault
		e, err := loadEnv()
		if err != nil {
			return err
		}
		ctx := context.Background()
		svc, err := e.service(ctx, false)
		if err != nil {
			return err
		}
		if err := notekit.Close(svc); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized notekit vault in %s (adapter: %s)\n", vault, e.cfg.Adapter)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initAdapter, "adapter", notekit.AdapterFS, "Store adapter (fs, memory, postgres)")
	initCmd.Flags().StringVar(&initDatabaseURL, "database-url", "", "PostgreSQL connection string for the postgres adapter")
}
