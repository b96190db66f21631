package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/notekit/pkg/core"
)

var (
	noteTitle   string
	noteContent string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note",
	Long:  `Create a note. A blank title becomes "Untitled"; a note with blank title and content is discarded.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			id, err := svc.Create(ctx, sess, noteTitle, noteContent)
			res := core.ResultOf(id, err)
			return report(cmd.OutOrStdout(), res, fmt.Sprintf("Created note %s.", res.ID))
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Replace the title and content of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			title, content := noteTitle, noteContent
			if !cmd.Flags().Changed("title") || !cmd.Flags().Changed("content") {
				current, err := svc.Get(ctx, sess, id)
				if err != nil {
					return report(cmd.OutOrStdout(), core.ResultOf(id, err), "")
				}
				if !cmd.Flags().Changed("title") {
					title = current.Title
				}
				if !cmd.Flags().Changed("content") {
					content = current.Content
				}
			}
			err := svc.Edit(ctx, sess, id, title, content)
			return report(cmd.OutOrStdout(), core.ResultOf(id, err), fmt.Sprintf("Saved note %s.", id))
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			n, err := svc.Get(ctx, sess, id)
			if err != nil {
				return report(cmd.OutOrStdout(), core.ResultOf(id, err), "")
			}
			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, n)
			}
			fmt.Fprintf(w, "# %s\n", n.Title)
			fmt.Fprintf(w, "id: %s  pinned: %v  deleted: %v  words: %d\n", n.ID, n.Pinned, n.Deleted, n.WordCount())
			fmt.Fprintf(w, "created: %s  updated: %s\n\n", formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
			if n.Content != "" {
				fmt.Fprintln(w, n.Content)
			}
			return nil
		})
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin [id]",
	Short: "Toggle the pin of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			n, err := svc.Get(ctx, sess, id)
			if err == nil {
				err = svc.TogglePin(ctx, sess, id, n.Pinned)
			}
			msg := fmt.Sprintf("Pinned note %s.", id)
			if n.Pinned {
				msg = fmt.Sprintf("Unpinned note %s.", id)
			}
			return report(cmd.OutOrStdout(), core.ResultOf(id, err), msg)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Move a note to the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			err := svc.SoftDelete(ctx, sess, id)
			return report(cmd.OutOrStdout(), core.ResultOf(id, err), fmt.Sprintf("Moved note %s to the recycle bin.", id))
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [id]",
	Short: "Restore a note from the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			err := svc.Restore(ctx, sess, id)
			return report(cmd.OutOrStdout(), core.ResultOf(id, err), fmt.Sprintf("Restored note %s.", id))
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge [id]",
	Short: "Permanently delete a note from the recycle bin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withSession(func(ctx context.Context, svc *core.Service, sess core.Session) error {
			err := svc.Purge(ctx, sess, id)
			return report(cmd.OutOrStdout(), core.ResultOf(id, err), fmt.Sprintf("Purged note %s.", id))
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{createCmd, editCmd} {
		cmd.Flags().StringVarP(&noteTitle, "title", "t", "", "Note title")
		cmd.Flags().StringVarP(&noteContent, "content", "c", "", "Note content")
	}
	rootCmd.AddCommand(createCmd, editCmd, showCmd, pinCmd, deleteCmd, restoreCmd, purgeCmd)
}
