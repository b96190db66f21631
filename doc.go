// Package notekit is the composition root of the notekit note-taking core.
//
// It wires the domain layer (pkg/core) to a document store adapter and
// re-exports the functional options used to configure it.
//
// Every note belongs to one account. Intents (create, edit, pin, soft-delete,
// restore, purge) are scoped to an explicit core.Session and issued as single
// atomic document writes; live views re-derive the ordered note list from
// every full snapshot the store pushes.
//
// Adapters:
//
//   - fs: one Markdown file with YAML frontmatter per note, watched for
//     external edits. The default.
//   - memory: in-process, for tests and demos.
//   - postgres: jsonb rows with LISTEN/NOTIFY change streams.
//
// Usage:
//
//	svc, err := notekit.New(ctx, "./vault",
//		notekit.WithLogger(logger),
//	)
//	defer notekit.Close(svc)
//
//	id, err := svc.Create(ctx, session, "Grocery List", "milk")
//	view, err := svc.OpenView(ctx, session, core.ViewPrimary, core.ViewOptions{})
package notekit
