// Package knowledge implements the vector-store client and embedding
// adapter for the growlog knowledge base.
//
// A "collection" is a dedicated PostgreSQL table with a fixed-dimension
// pgvector column and a cosine-distance HNSW index. Collections hold
// immutable knowledge items loaded at ingestion time; serving-time
// access is read-only except for Upsert during ingestion.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Querier is the subset of pgxpool.Pool the store needs. Defined here,
// by the consumer, so tests can substitute fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ErrBadVector indicates a vector with the wrong dimension was passed
// to Upsert or Search.
var ErrBadVector = errors.New("vector dimension mismatch")

// Store is a vector-store client bound to a single named collection.
// It supports idempotent collection creation, point upsert, and top-k
// nearest-neighbor search under cosine distance.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db         Querier
	collection string
	table      string
	dim        int
	logger     *slog.Logger
}

// NewStore creates a store for the named collection. The collection
// name must be a plain lowercase identifier; it is embedded in DDL so
// anything else is rejected here rather than reaching SQL.
func NewStore(db Querier, collection string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !validIdent(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}

	return &Store{
		db:         db,
		collection: collection,
		table:      "kb_" + collection,
		dim:        VectorDim,
		logger:     logger,
	}, nil
}

// Collection returns the collection name the store is bound to.
func (s *Store) Collection() string { return s.collection }

// EnsureCollection creates the collection table and its cosine HNSW
// index if they do not exist. It is idempotent and tolerates concurrent
// callers racing to create the same collection at startup: "already
// exists" from a lost race is success, not an error.
func (s *Store) EnsureCollection(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table, s.dim)

	if _, err := s.db.Exec(ctx, ddl); err != nil && !alreadyExists(err) {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}

	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
		USING hnsw (embedding vector_cosine_ops)`, s.table, s.table)

	if _, err := s.db.Exec(ctx, idx); err != nil && !alreadyExists(err) {
		return fmt.Errorf("creating collection index %s: %w", s.collection, err)
	}

	s.logger.Debug("collection ready", "collection", s.collection, "dim", s.dim)
	return nil
}

// Upsert writes a point keyed by a stable content-derived id. Repeated
// ingestion of the same logical item overwrites rather than duplicates.
func (s *Store) Upsert(ctx context.Context, id string, vec []float32, item Item) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: got %d, collection %s expects %d",
			ErrBadVector, len(vec), s.collection, s.dim)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshaling payload for %q: %w", id, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload`, s.table)

	if _, err := s.db.Exec(ctx, query, id, pgvector.NewVector(vec), payload); err != nil {
		return fmt.Errorf("upserting %q into %s: %w", id, s.collection, err)
	}

	s.logger.Debug("upserted point", "collection", s.collection, "id", id)
	return nil
}

// Search returns up to topK points nearest to vec, ordered by
// descending cosine similarity (1 - cosine distance).
func (s *Store) Search(ctx context.Context, vec []float32, topK int) ([]Result, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: got %d, collection %s expects %d",
			ErrBadVector, len(vec), s.collection, s.dim)
	}
	if topK <= 0 {
		topK = 5
	}

	query := fmt.Sprintf(`SELECT payload, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.table)

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.collection, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var payload []byte
		var score float64
		if err := rows.Scan(&payload, &score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}

		var item Item
		if err := json.Unmarshal(payload, &item); err != nil {
			s.logger.Warn("skipping point with bad payload", "collection", s.collection, "error", err)
			continue
		}

		results = append(results, Result{Item: item, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// Count returns the number of points in the collection.
func (s *Store) Count(ctx context.Context) (int64, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table))
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", s.collection, err)
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("scanning count: %w", err)
		}
	}
	return count, rows.Err()
}

// alreadyExists reports whether err is a PostgreSQL "object already
// exists" violation. Two processes running EnsureCollection at the same
// time can both pass the IF NOT EXISTS check inside the catalog, and
// the loser surfaces one of these codes.
func alreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42P07", // duplicate_table
		"42710", // duplicate_object
		"23505": // unique_violation (pg_type catalog race)
		return true
	}
	return false
}

// validIdent mirrors config's collection validation; the store checks
// again because it is the last gate before DDL.
func validIdent(name string) bool {
	if name == "" || len(name) > 48 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_' && i > 0:
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
