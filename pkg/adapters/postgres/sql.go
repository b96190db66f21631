package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/aretw0/notekit/pkg/core"
)

// schema is applied statement by statement in Initialize. %[1]s is the
// quoted table name, %[2]s the notification channel, %[3]s the bare
// table name used to derive object names and %[4]s the JSON object of note
// field defaults, merged under every written row so containment filters
// match rows whose writers omitted those fields.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s (
		collection text        NOT NULL,
		id         text        NOT NULL,
		fields     jsonb       NOT NULL DEFAULT '{}'::jsonb,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS %[3]s_fields_idx ON %[1]s USING gin (fields jsonb_path_ops)`,
	`CREATE OR REPLACE FUNCTION %[3]s_notify() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('%[2]s', COALESCE(NEW.collection, OLD.collection));
		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,
	`CREATE OR REPLACE FUNCTION %[3]s_defaults() RETURNS trigger AS $$
	BEGIN
		NEW.fields := '%[4]s'::jsonb || NEW.fields;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS %[3]s_defaults ON %[1]s`,
	`CREATE TRIGGER %[3]s_defaults BEFORE INSERT OR UPDATE ON %[1]s
		FOR EACH ROW EXECUTE FUNCTION %[3]s_defaults()`,
	`UPDATE %[1]s SET fields = fields WHERE NOT fields ?& ARRAY(SELECT jsonb_object_keys('%[4]s'::jsonb))`,
	`DROP TRIGGER IF EXISTS %[3]s_notify ON %[1]s`,
	`CREATE TRIGGER %[3]s_notify AFTER INSERT OR UPDATE OR DELETE ON %[1]s
		FOR EACH ROW EXECUTE FUNCTION %[3]s_notify()`,
}

// bumpUpdatedAt never moves updated_at backwards, even if the database
// clock does.
const bumpUpdatedAt = `GREATEST(date_trunc('microseconds', clock_timestamp()), updated_at + interval '1 microsecond')`

// args accumulates positional parameters.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

// whereClause renders equality filters. Document fields are matched with a
// single jsonb containment check; timestamp fields compare their columns.
func whereClause(filters []core.Filter, a *args) (string, error) {
	var conds []string
	contained := make(map[string]any)
	for _, f := range filters {
		switch f.Field {
		case core.FieldCreatedAt:
			conds = append(conds, "created_at = "+a.add(f.Value))
		case core.FieldUpdatedAt:
			conds = append(conds, "updated_at = "+a.add(f.Value))
		default:
			if _, dup := contained[f.Field]; dup {
				return "", fmt.Errorf("%w: duplicate filter on %q", core.ErrInvalidQuery, f.Field)
			}
			contained[f.Field] = f.Value
		}
	}
	if len(contained) > 0 {
		data, err := json.Marshal(contained)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrInvalidQuery, err)
		}
		conds = append(conds, "fields @> "+a.add(string(data))+"::jsonb")
	}
	return strings.Join(conds, " AND "), nil
}

// orderClause renders the store-side order. Ties break on id so every
// evaluation of the same data yields the same sequence.
func orderClause(order *core.OrderBy, a *args) string {
	if order == nil {
		return "ORDER BY id ASC"
	}
	dir := "ASC"
	if order.Direction == core.Descending {
		dir = "DESC"
	}
	var expr string
	switch order.Field {
	case core.FieldCreatedAt:
		expr = "created_at"
	case core.FieldUpdatedAt:
		expr = "updated_at"
	default:
		expr = "fields -> " + a.add(order.Field)
	}
	return fmt.Sprintf("ORDER BY %s %s, id ASC", expr, dir)
}

// selectQuery renders the SELECT that evaluates q.
func selectQuery(table string, q core.Query) (string, []any, error) {
	var a args
	sql := fmt.Sprintf("SELECT id, fields, created_at, updated_at FROM %s WHERE collection = %s",
		pgx.Identifier{table}.Sanitize(), a.add(q.Collection))
	where, err := whereClause(q.Filters, &a)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql += " AND " + where
	}
	sql += " " + orderClause(q.Order, &a)
	return sql, a, nil
}

// splitPatch separates the JSON payload of a partial update from the
// timestamp refresh request.
func splitPatch(patch core.Fields) (data []byte, touch bool, err error) {
	fields := make(map[string]any, len(patch))
	for k, v := range patch {
		switch k {
		case core.FieldCreatedAt:
		case core.FieldUpdatedAt:
			touch = core.IsServerTimestamp(v)
		default:
			fields[k] = v
		}
	}
	data, err = json.Marshal(fields)
	return data, touch, err
}
