package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notekit"
	viewevents "github.com/aretw0/notekit/pkg/adapters/lifecycle"
	"github.com/aretw0/notekit/pkg/core"
)

var (
	searchTerm  string
	filterMode  string
	showRecycle bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, pinned first and most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, opts, err := viewFlags()
		if err != nil {
			return err
		}
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			view, err := svc.OpenView(ctx, sess, mode, opts)
			if err != nil {
				return report(cmd.OutOrStdout(), core.ResultOf("", err), "")
			}
			defer view.Close()

			notes, ok := <-view.Updates()
			if !ok {
				return report(cmd.OutOrStdout(), core.ResultOf("", view.Err()), "")
			}
			return printNotes(cmd.OutOrStdout(), mode, notes)
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the note list every time it changes, until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, opts, err := viewFlags()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := loadEnv()
		if err != nil {
			return err
		}
		sess, err := e.session(ctx)
		if err != nil {
			return err
		}
		svc, err := e.service(ctx, true)
		if err != nil {
			return err
		}
		defer notekit.Close(svc)

		view, err := svc.OpenView(ctx, sess, mode, opts)
		if err != nil {
			return report(cmd.OutOrStdout(), core.ResultOf("", err), "")
		}
		defer view.Close()

		src := viewevents.NewSource(view)
		if err := src.Start(ctx); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for ev := range src.Events() {
			vev, ok := ev.(viewevents.ViewEvent)
			if !ok {
				continue
			}
			if !jsonOutput {
				fmt.Fprintf(w, "--- %s, %s ---\n", vev, time.Now().Format("15:04:05"))
			}
			if err := printNotes(w, vev.Mode, vev.Notes); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := view.Err(); err != nil {
			return report(w, core.ResultOf("", err), "")
		}
		return nil
	},
}

func viewFlags() (core.ViewMode, core.ViewOptions, error) {
	filter, err := core.ParseFilterMode(filterMode)
	if err != nil {
		return 0, core.ViewOptions{}, err
	}
	mode := core.ViewPrimary
	if showRecycle {
		mode = core.ViewRecycle
	}
	return mode, core.ViewOptions{Search: searchTerm, Filter: filter}, nil
}

func printNotes(w io.Writer, mode core.ViewMode, notes []core.Note) error {
	if jsonOutput {
		if notes == nil {
			notes = []core.Note{}
		}
		return writeJSON(w, notes)
	}
	if len(notes) == 0 {
		if mode == core.ViewRecycle {
			fmt.Fprintln(w, "Recycle bin is empty.")
		} else {
			fmt.Fprintln(w, "No notes.")
		}
		return nil
	}
	for _, n := range notes {
		marker := " "
		if n.Pinned {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  %-40s  %s\n", marker, n.ID, n.Title, formatTime(n.UpdatedAt))
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	for _, cmd := range []*cobra.Command{listCmd, watchCmd} {
		cmd.Flags().StringVarP(&searchTerm, "search", "s", "", "Only notes whose title or content contains this text (case-insensitive)")
		cmd.Flags().StringVarP(&filterMode, "filter", "f", "all", "Filter mode: all or pinned")
		cmd.Flags().BoolVar(&showRecycle, "recycle", false, "Show the recycle bin instead")
	}
	rootCmd.AddCommand(listCmd, watchCmd)
}
