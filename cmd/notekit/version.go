package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/notekit"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of notekit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "notekit version %s\n", strings.TrimSpace(notekit.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
