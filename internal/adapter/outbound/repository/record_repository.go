package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"embedfill/internal/domain/entity"
	"embedfill/internal/domain/valueobject"
	"embedfill/internal/port/outbound"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Defaults match the chunks table the backfill was originally written against.
const (
	DefaultTable           = "chunks"
	DefaultIDColumn        = "id"
	DefaultContentColumn   = "content"
	DefaultEmbeddingColumn = "embedding"
	DefaultProcessedColumn = "vectored"
)

// TableConfig names the table and columns holding records.
type TableConfig struct {
	Table           string // optionally schema-qualified, e.g. "public.chunks"
	IDColumn        string
	ContentColumn   string
	EmbeddingColumn string
	ProcessedColumn string
}

// DefaultTableConfig returns the default table layout.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		Table:           DefaultTable,
		IDColumn:        DefaultIDColumn,
		ContentColumn:   DefaultContentColumn,
		EmbeddingColumn: DefaultEmbeddingColumn,
		ProcessedColumn: DefaultProcessedColumn,
	}
}

// withDefaults fills empty names from DefaultTableConfig.
func (c TableConfig) withDefaults() TableConfig {
	d := DefaultTableConfig()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.IDColumn == "" {
		c.IDColumn = d.IDColumn
	}
	if c.ContentColumn == "" {
		c.ContentColumn = d.ContentColumn
	}
	if c.EmbeddingColumn == "" {
		c.EmbeddingColumn = d.EmbeddingColumn
	}
	if c.ProcessedColumn == "" {
		c.ProcessedColumn = d.ProcessedColumn
	}
	return c
}

// QueryInterface represents either a connection pool or a transaction.
type QueryInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// recordQueries holds the SQL statements for one TableConfig.
// Identifiers are quoted once at construction.
type recordQueries struct {
	fetch     string
	mark      string
	nearest   string
	count     string
	columns   string
	tableName string
}

func newRecordQueries(c TableConfig) recordQueries {
	table := pgx.Identifier(strings.Split(c.Table, ".")).Sanitize()
	id := pgx.Identifier{c.IDColumn}.Sanitize()
	content := pgx.Identifier{c.ContentColumn}.Sanitize()
	embedding := pgx.Identifier{c.EmbeddingColumn}.Sanitize()
	processed := pgx.Identifier{c.ProcessedColumn}.Sanitize()

	return recordQueries{
		// rows without content have nothing to encode and are left for status to report
		fetch: fmt.Sprintf(
			"SELECT %[1]s, %[2]s FROM %[3]s WHERE %[4]s = false AND %[2]s IS NOT NULL AND NOT (%[1]s = ANY($2)) ORDER BY %[1]s LIMIT $1",
			id, content, table, processed,
		),
		mark: fmt.Sprintf(
			"UPDATE %s SET %s = $1, %s = true WHERE %s = $2 AND %s = false",
			table, embedding, processed, id, processed,
		),
		nearest: fmt.Sprintf(
			"SELECT %[1]s, COALESCE(%[2]s, ''), %[3]s, 1 - (%[3]s <=> $1) FROM %[4]s WHERE %[5]s AND %[3]s IS NOT NULL ORDER BY %[3]s <=> $1 LIMIT $2",
			id, content, embedding, table, processed,
		),
		count: fmt.Sprintf(
			"SELECT count(*), count(*) FILTER (WHERE %[1]s), count(*) FILTER (WHERE NOT %[1]s AND %[2]s IS NULL) FROM %[3]s",
			processed, content, table,
		),
		columns:   "SELECT attname FROM pg_attribute WHERE attrelid = to_regclass($1) AND attnum > 0 AND NOT attisdropped",
		tableName: table,
	}
}

// PostgreSQLRecordRepository implements outbound.RecordStore and
// outbound.RecordInspector on a PostgreSQL table with a pgvector column.
type PostgreSQLRecordRepository struct {
	db      QueryInterface
	table   TableConfig
	queries recordQueries
}

var (
	_ outbound.RecordStore     = (*PostgreSQLRecordRepository)(nil)
	_ outbound.RecordInspector = (*PostgreSQLRecordRepository)(nil)
	_ outbound.RecordSearcher  = (*PostgreSQLRecordRepository)(nil)
)

// NewPostgreSQLRecordRepository creates a record repository over db.
// db is usually a *pgxpool.Pool.
func NewPostgreSQLRecordRepository(db QueryInterface, table TableConfig) *PostgreSQLRecordRepository {
	table = table.withDefaults()
	return &PostgreSQLRecordRepository{
		db:      db,
		table:   table,
		queries: newRecordQueries(table),
	}
}

// FetchUnprocessed returns up to limit unprocessed records ordered by id.
func (r *PostgreSQLRecordRepository) FetchUnprocessed(
	ctx context.Context,
	limit int,
	exclude []int64,
) ([]entity.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("fetch limit must be positive, got %d", limit)
	}
	if exclude == nil {
		exclude = []int64{}
	}

	rows, err := r.db.Query(ctx, r.queries.fetch, limit, exclude)
	if err != nil {
		return nil, WrapError(err, "fetch unprocessed records")
	}
	defer rows.Close()

	records := make([]entity.Record, 0, limit)
	for rows.Next() {
		var (
			id      int64
			content string
		)
		if err := rows.Scan(&id, &content); err != nil {
			return nil, WrapError(err, "scan unprocessed record")
		}
		records = append(records, entity.NewUnprocessedRecord(id, content))
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate unprocessed records")
	}

	return records, nil
}

// MarkProcessed writes the embedding and sets the processed flag in one statement.
// The update only matches an unprocessed row, so a record that vanished or was
// already marked reports ErrNotFound and nothing changes.
func (r *PostgreSQLRecordRepository) MarkProcessed(
	ctx context.Context,
	id int64,
	embedding valueobject.Embedding,
) error {
	if embedding.IsZero() {
		return fmt.Errorf("mark record %d processed: embedding is empty", id)
	}

	tag, err := r.db.Exec(ctx, r.queries.mark, embedding.Vector(), id)
	if err != nil {
		return WrapError(err, fmt.Sprintf("mark record %d processed", id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark record %d processed: %w", id, ErrNotFound)
	}
	return nil
}

// FindNearest returns up to k processed records ordered by cosine distance to query.
// Score is the cosine similarity, 1 - distance.
func (r *PostgreSQLRecordRepository) FindNearest(
	ctx context.Context,
	query valueobject.Embedding,
	k int,
) ([]outbound.ScoredRecord, error) {
	if k <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", k)
	}
	if query.IsZero() {
		return nil, errors.New("search query embedding is empty")
	}

	rows, err := r.db.Query(ctx, r.queries.nearest, query.Vector(), k)
	if err != nil {
		return nil, WrapError(err, "find nearest records")
	}
	defer rows.Close()

	results := make([]outbound.ScoredRecord, 0, k)
	for rows.Next() {
		var (
			id      int64
			content string
			stored  pgvector.Vector
			score   float64
		)
		if err := rows.Scan(&id, &content, &stored, &score); err != nil {
			return nil, WrapError(err, "scan nearest record")
		}
		emb, err := valueobject.NewEmbedding(stored.Slice())
		if err != nil {
			return nil, fmt.Errorf("record %d has an invalid stored embedding: %w", id, err)
		}
		results = append(results, outbound.ScoredRecord{
			Record: entity.RestoreRecord(id, content, true, emb),
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate nearest records")
	}

	return results, nil
}

// CountRecords returns processed and unprocessed totals. Unprocessed rows with
// NULL content are also counted separately since the backfill never selects them.
func (r *PostgreSQLRecordRepository) CountRecords(ctx context.Context) (outbound.RecordCounts, error) {
	var counts outbound.RecordCounts
	err := r.db.QueryRow(ctx, r.queries.count).Scan(&counts.Total, &counts.Processed, &counts.MissingContent)
	if err != nil {
		return outbound.RecordCounts{}, WrapError(err, "count records")
	}
	counts.Unprocessed = counts.Total - counts.Processed
	return counts, nil
}

// VerifySchema checks that the vector extension is installed and the table has
// every configured column.
func (r *PostgreSQLRecordRepository) VerifySchema(ctx context.Context) error {
	var installed bool
	err := r.db.QueryRow(ctx, vectorExtensionQuery).Scan(&installed)
	if err != nil {
		return WrapError(err, "check vector extension")
	}
	if !installed {
		return fmt.Errorf("%w: vector extension is not installed", ErrSchemaMissing)
	}

	rows, err := r.db.Query(ctx, r.queries.columns, r.queries.tableName)
	if err != nil {
		return WrapError(err, "inspect table columns")
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return WrapError(err, "scan column name")
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return WrapError(err, "inspect table columns")
	}
	if len(present) == 0 {
		return fmt.Errorf("%w: table %s does not exist", ErrSchemaMissing, r.table.Table)
	}

	var missing []string
	for _, col := range []string{
		r.table.IDColumn,
		r.table.ContentColumn,
		r.table.EmbeddingColumn,
		r.table.ProcessedColumn,
	} {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: table %s is missing columns %s",
			ErrSchemaMissing, r.table.Table, strings.Join(missing, ", "))
	}
	return nil
}

// IsRetryable classifies store errors for the retry executor.
func (r *PostgreSQLRecordRepository) IsRetryable(err error) bool {
	return IsRetryable(err)
}

// IsRetryable reports whether err is worth another attempt.
// Missing rows and schema problems are permanent; connection trouble is not.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNotFound) || IsSchemaError(err) || IsConstraintViolationError(err) {
		return false
	}
	return IsTransientError(err)
}
