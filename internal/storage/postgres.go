// Package storage translates compiled queries into parameterized SQL over
// the records table and executes them through a pgx pool. Typed record
// metadata lives in real columns; domain fields live in a JSONB properties
// document and are cast per the entity schema when filtered or sorted.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsgrid/backoffice/internal/query"
)

// Postgres implements query.Executor against the records table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// BuildSelect renders a compiled query into SQL and its positional args.
// Exposed for tests and the aggregate path; Query and Count call it.
func BuildSelect(q query.CompiledQuery) (string, []any, error) {
	if q.Aggregation != nil {
		return buildAggregate(q)
	}

	b := newBuilder(q.Schema)
	where, err := b.whereSQL(q.Filter)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, tenant_id, entity_type, properties, deleted, created_at, updated_at FROM records WHERE entity_type = ")
	sb.WriteString(b.bind(q.Entity))
	sb.WriteString(" AND ")
	sb.WriteString(where)

	if order := b.orderSQL(q.Sort); order != "" {
		sb.WriteString(" ")
		sb.WriteString(order)
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %s", b.bind(q.Pagination.Limit)))
	if q.Pagination.Strategy == query.StrategyOffset && q.Pagination.Skip > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %s", b.bind(q.Pagination.Skip)))
	}
	return sb.String(), b.args, nil
}

// buildAggregate renders the grouped form: one row per bucket with a count
// and, when a metric field is set, its sum.
func buildAggregate(q query.CompiledQuery) (string, []any, error) {
	b := newBuilder(q.Schema)
	where, err := b.whereSQL(q.Filter)
	if err != nil {
		return "", nil, err
	}

	agg := q.Aggregation
	// Buckets scan as text regardless of the field's declared type.
	bucket := b.textExpr(agg.GroupBy)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(bucket)
	sb.WriteString(" AS bucket, COUNT(*) AS count")
	if agg.MetricField != "" {
		sb.WriteString(", COALESCE(SUM(")
		sb.WriteString(b.fieldExpr(agg.MetricField))
		sb.WriteString("), 0) AS total")
	}
	sb.WriteString(" FROM records WHERE entity_type = ")
	sb.WriteString(b.bind(q.Entity))
	sb.WriteString(" AND ")
	sb.WriteString(where)
	sb.WriteString(" GROUP BY bucket ORDER BY count DESC, bucket ASC")
	sb.WriteString(fmt.Sprintf(" LIMIT %s", b.bind(q.Pagination.Limit)))
	if q.Pagination.Strategy == query.StrategyOffset && q.Pagination.Skip > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %s", b.bind(q.Pagination.Skip)))
	}
	return sb.String(), b.args, nil
}

// BuildCount renders the total-count companion of a compiled query; limit
// and offset are deliberately absent.
func BuildCount(q query.CompiledQuery) (string, []any, error) {
	b := newBuilder(q.Schema)
	where, err := b.whereSQL(q.Filter)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM records WHERE entity_type = %s AND %s", b.bind(q.Entity), where)
	return sql, b.args, nil
}

func (p *Postgres) Query(ctx context.Context, q query.CompiledQuery) ([]map[string]any, error) {
	sql, args, err := BuildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	if q.Aggregation != nil {
		return scanAggregateRows(rows, q.Aggregation)
	}
	return scanRecordRows(rows, q.Projection)
}

func (p *Postgres) Count(ctx context.Context, q query.CompiledQuery) (int64, error) {
	sql, args, err := BuildCount(q)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return total, nil
}

// GetByIDs fetches a batch of records for relation expansion, scoped to a
// tenant and entity type, honoring the expansion's extra match clauses.
func (p *Postgres) GetByIDs(ctx context.Context, tenantID uuid.UUID, entityType string, ids []string, match []query.Clause) ([]map[string]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	b := newBuilder(nil)
	filter := query.Filter{And: append([]query.Clause{
		{Field: "tenant_id", Op: query.OpEq, Value: tenantID},
		{Field: "id", Op: query.OpIn, Value: toAny(ids)},
		{Field: "deleted", Op: query.OpEq, Value: false},
	}, match...)}
	where, err := b.whereSQL(filter)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(
		"SELECT id, tenant_id, entity_type, properties, deleted, created_at, updated_at FROM records WHERE entity_type = %s AND %s",
		b.bind(entityType), where)
	rows, err := p.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("query records by id: %w", err)
	}
	defer rows.Close()
	return scanRecordRows(rows, nil)
}

// Insert stores one record. Used by the catalog seeding path and tests
// that exercise the live executor.
func (p *Postgres) Insert(ctx context.Context, id, tenantID uuid.UUID, entityType string, properties map[string]any) error {
	payload, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO records (id, tenant_id, entity_type, properties) VALUES ($1, $2, $3, $4)`,
		id, tenantID, entityType, payload)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// SoftDelete marks a record deleted without removing the row.
func (p *Postgres) SoftDelete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE records SET deleted = TRUE, updated_at = now() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s not found", id)
	}
	return nil
}

func scanRecordRows(rows pgx.Rows, projection []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, 32)
	for rows.Next() {
		var (
			id, tenantID         uuid.UUID
			entityType           string
			properties           []byte
			deleted              bool
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&id, &tenantID, &entityType, &properties, &deleted, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		props := map[string]any{}
		if len(properties) > 0 {
			if err := json.Unmarshal(properties, &props); err != nil {
				return nil, fmt.Errorf("decode properties for %s: %w", id, err)
			}
		}

		row := map[string]any{
			"id":         id.String(),
			"tenant_id":  tenantID.String(),
			"created_at": createdAt.UTC().Format(time.RFC3339),
			"updated_at": updatedAt.UTC().Format(time.RFC3339),
		}
		for k, v := range props {
			row[k] = v
		}
		out = append(out, applyProjection(row, projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanAggregateRows(rows pgx.Rows, agg *query.Aggregation) ([]map[string]any, error) {
	out := make([]map[string]any, 0, 16)
	for rows.Next() {
		var (
			bucket *string
			count  int64
			total  float64
		)
		dest := []any{&bucket, &count}
		if agg.MetricField != "" {
			dest = append(dest, &total)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}

		row := map[string]any{"count": count}
		if bucket != nil {
			row["bucket"] = *bucket
		} else {
			row["bucket"] = nil
		}
		if agg.MetricField != "" {
			row["total"] = total
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return out, nil
}

// applyProjection drops keys outside the requested field set. id always
// survives so callers can page and expand.
func applyProjection(row map[string]any, projection []string) map[string]any {
	if len(projection) == 0 {
		return row
	}
	keep := map[string]bool{"id": true}
	for _, f := range projection {
		keep[f] = true
	}
	out := make(map[string]any, len(keep))
	for k, v := range row {
		if keep[k] {
			out[k] = v
		}
	}
	return out
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
