// Package postgres implements core.DocumentStore on PostgreSQL.
//
// Every document is one row of a jsonb-backed table. A trigger publishes the
// collection name on a notification channel after each write, and a single
// LISTEN connection wakes the subscriptions of that collection, so writes
// from any process reach every open view.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/aretw0/notekit/internal/stream"
	"github.com/aretw0/notekit/pkg/core"
)

// DefaultTable is the table documents are stored in.
const DefaultTable = "documents"

// Store implements core.DocumentStore on a pgx connection pool.
type Store struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	hub     *stream.Hub
	table   string
	channel string

	mu           sync.Mutex
	listening    bool
	stopListen   context.CancelFunc
	listenDone   chan struct{}
	notifyCount  uint64
	lastNotifyAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTable stores documents in a different table. The name must be a plain
// identifier; it also names the notification channel.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// Open connects to databaseURL. Call Initialize before use.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is not set")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		table:  DefaultTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.channel = s.table + "_changes"
	s.hub = stream.NewHub(s.logger)
	return s
}

// Initialize creates the table, its index and the change trigger.
func (s *Store) Initialize(ctx context.Context) error {
	if strings.ContainsAny(s.table, `"'.; `) {
		return fmt.Errorf("invalid table name %q", s.table)
	}
	quoted := pgx.Identifier{s.table}.Sanitize()
	defaults, err := json.Marshal(core.NoteDefaults)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(stmt, quoted, s.channel, s.table, defaults)); err != nil {
			return storeErr("initialize", err)
		}
	}
	s.logger.Debug("postgres store initialized", "table", s.table, "channel", s.channel)
	return nil
}

// Create implements core.DocumentStore.
func (s *Store) Create(ctx context.Context, collection string, fields core.Fields) (string, error) {
	data, _, err := splitPatch(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	id := ulid.Make().String()
	sql := fmt.Sprintf(`INSERT INTO %s (collection, id, fields, created_at, updated_at)
		SELECT $1, $2, $3::jsonb, clk.ts, clk.ts
		FROM (SELECT date_trunc('microseconds', clock_timestamp()) AS ts) AS clk`,
		pgx.Identifier{s.table}.Sanitize())
	if _, err := s.pool.Exec(ctx, sql, collection, id, string(data)); err != nil {
		return "", storeErr("create", err)
	}

	s.logger.Debug("document created", "collection", collection, "id", id)
	return id, nil
}

// Get implements core.DocumentStore.
func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	sql := fmt.Sprintf(`SELECT id, fields, created_at, updated_at FROM %s WHERE collection = $1 AND id = $2`,
		pgx.Identifier{s.table}.Sanitize())
	doc, err := scanDocument(s.pool.QueryRow(ctx, sql, collection, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Document{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, collection, id)
	}
	if err != nil {
		return core.Document{}, storeErr("get", err)
	}
	return doc, nil
}

// Update implements core.DocumentStore. The preconditions are part of the
// UPDATE's WHERE clause, so check and write are one statement.
func (s *Store) Update(ctx context.Context, collection, id string, fields core.Fields, preconds ...core.Precondition) error {
	data, touch, err := splitPatch(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	var a args
	set := "fields = fields || " + a.add(string(data)) + "::jsonb"
	if touch {
		set += ", updated_at = " + bumpUpdatedAt
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE collection = %s AND id = %s",
		pgx.Identifier{s.table}.Sanitize(), set, a.add(collection), a.add(id))
	where, err := whereClause(preconds, &a)
	if err != nil {
		return err
	}
	if where != "" {
		sql += " AND " + where
	}

	tag, err := s.pool.Exec(ctx, sql, a...)
	if err != nil {
		return storeErr("update", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missed(ctx, collection, id)
	}
	return nil
}

// Delete implements core.DocumentStore.
func (s *Store) Delete(ctx context.Context, collection, id string, preconds ...core.Precondition) error {
	var a args
	sql := fmt.Sprintf("DELETE FROM %s WHERE collection = %s AND id = %s",
		pgx.Identifier{s.table}.Sanitize(), a.add(collection), a.add(id))
	where, err := whereClause(preconds, &a)
	if err != nil {
		return err
	}
	if where != "" {
		sql += " AND " + where
	}

	tag, err := s.pool.Exec(ctx, sql, a...)
	if err != nil {
		return storeErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missed(ctx, collection, id)
	}
	return nil
}

// missed explains a write that matched no row.
func (s *Store) missed(ctx context.Context, collection, id string) error {
	var exists bool
	sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE collection = $1 AND id = $2)",
		pgx.Identifier{s.table}.Sanitize())
	if err := s.pool.QueryRow(ctx, sql, collection, id).Scan(&exists); err != nil {
		return storeErr("lookup", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", core.ErrNotFound, collection, id)
	}
	return core.ErrPreconditionFailed
}

// Subscribe implements core.DocumentStore.
func (s *Store) Subscribe(ctx context.Context, q core.Query) (<-chan core.Snapshot, core.CancelFunc, error) {
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	if _, _, err := selectQuery(s.table, q); err != nil {
		return nil, nil, err
	}
	if err := s.listen(); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.Subscribe(ctx, q, s.results)
	return ch, cancel, nil
}

func (s *Store) results(ctx context.Context, q core.Query) ([]core.Document, error) {
	sql, a, err := selectQuery(s.table, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, a...)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storeErr("scan", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", err)
	}
	return docs, nil
}

// listen starts the LISTEN loop if it is not running.
func (s *Store) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		cancel()
		return storeErr("listen", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		cancel()
		return storeErr("listen", err)
	}

	done := make(chan struct{})
	s.listening = true
	s.stopListen = cancel
	s.listenDone = done

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(done)
		defer conn.Release()
		return s.waitLoop(ctx, conn)
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("listener panic", "error", err)
	}))
	return nil
}

func (s *Store) waitLoop(ctx context.Context, conn *pgxpool.Conn) error {
	defer func() {
		s.mu.Lock()
		s.listening = false
		s.mu.Unlock()
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("notification stream lost", "channel", s.channel, "error", err)
			s.hub.Fail(storeErr("listen", err))
			return err
		}
		s.mu.Lock()
		s.notifyCount++
		s.lastNotifyAt = time.Now()
		s.mu.Unlock()
		s.hub.Notify(n.Payload)
	}
}

// Close stops the listener, ends all subscriptions and closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	stop, done := s.stopListen, s.listenDone
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
	s.hub.Close()
	s.pool.Close()
	return nil
}

func scanDocument(row pgx.Row) (core.Document, error) {
	var (
		doc  core.Document
		data []byte
	)
	if err := row.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return core.Document{}, err
	}
	doc.Fields = make(core.Fields)
	if err := json.Unmarshal(data, &doc.Fields); err != nil {
		return core.Document{}, fmt.Errorf("decode %s: %w", doc.ID, err)
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", core.ErrStoreUnavailable, op, err)
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Table         string     `json:"table"`
	Channel       string     `json:"channel"`
	Listening     bool       `json:"listening"`
	Subscriptions int        `json:"subscriptions"`
	Notifications uint64     `json:"notifications"`
	LastNotifyAt  *time.Time `json:"last_notify_at,omitempty"`
	TotalConns    int32      `json:"total_conns"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := StoreState{
		Table:         s.table,
		Channel:       s.channel,
		Listening:     s.listening,
		Subscriptions: s.hub.Len(),
		Notifications: s.notifyCount,
		TotalConns:    s.pool.Stat().TotalConns(),
	}
	if !s.lastNotifyAt.IsZero() {
		t := s.lastNotifyAt
		st.LastNotifyAt = &t
	}
	return st
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "postgres-store"
}

var _ core.DocumentStore = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
