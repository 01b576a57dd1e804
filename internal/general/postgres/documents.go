package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridemarket/internal/general/docmatch"
	"ridemarket/internal/ports"
)

//go:embed schema.sql
var schema string

// Migrate creates the documents table and its sequences if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// DocumentStore keeps every collection in one JSONB table. Conditional
// writes lock the row with SELECT ... FOR UPDATE, so preconditions are
// checked against the committed state.
type DocumentStore struct {
	pool *pgxpool.Pool
	uow  ports.UnitOfWork
}

var _ ports.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore wraps pool. Call Migrate first.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool, uow: NewUnitOfWork(pool)}
}

const selectColumns = `SELECT id, fields, version, seq, updated_at FROM documents`

// Get returns one document.
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (*ports.Document, error) {
	row := db(ctx, s.pool).QueryRow(ctx, selectColumns+` WHERE collection = $1 AND id = $2`, collection, id)
	return scanDocument(collection, id, row)
}

// Set replaces or merges a document, creating it when absent.
func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (*ports.Document, error) {
	normalized, err := docmatch.Normalize(fields)
	if err != nil {
		return nil, err
	}
	var out *ports.Document
	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if merge {
			existing, err := s.lock(ctx, collection, id)
			switch {
			case errors.Is(err, ports.ErrNotFound):
			case err != nil:
				return err
			default:
				patch := make(ports.Patch, len(normalized))
				for k, v := range normalized {
					patch[k] = v
				}
				if normalized, err = docmatch.ApplyPatch(existing.Fields, patch); err != nil {
					return err
				}
			}
		}
		out, err = s.upsert(ctx, collection, id, normalized)
		return err
	})
	return out, err
}

// Create stores a new document under a random id.
func (s *DocumentStore) Create(ctx context.Context, collection string, fields map[string]any) (*ports.Document, error) {
	normalized, err := docmatch.Normalize(fields)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	row := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO documents (collection, id, fields, version)
		VALUES ($1, $2, $3, nextval('document_version_seq'))
		RETURNING id, fields, version, seq, updated_at`,
		collection, id, raw)
	return scanDocument(collection, id, row)
}

// Update applies patch if every precondition holds on the locked row.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, patch ports.Patch, conds ...ports.Precondition) (*ports.Document, error) {
	var out *ports.Document
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.lock(ctx, collection, id)
		if err != nil {
			return err
		}
		if err := docmatch.CheckPreconditions(existing.Fields, conds); err != nil {
			return err
		}
		next, err := docmatch.ApplyPatch(existing.Fields, patch)
		if err != nil {
			return err
		}
		out, err = s.upsert(ctx, collection, id, next)
		return err
	})
	return out, err
}

// Delete removes a document and returns the deletion version.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) (int64, error) {
	var version int64
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
		}
		return db(ctx, s.pool).QueryRow(ctx, `SELECT nextval('document_version_seq')`).Scan(&version)
	})
	return version, err
}

// Query pushes equality filters down as JSONB containment and applies the
// full query (every filter, order and limit) in memory.
func (s *DocumentStore) Query(ctx context.Context, collection string, q ports.Query) ([]*ports.Document, error) {
	sql := selectColumns + ` WHERE collection = $1`
	args := []any{collection}
	if contain := containment(q.Filters); len(contain) > 0 {
		raw, err := json.Marshal(contain)
		if err != nil {
			return nil, err
		}
		sql += ` AND fields @> $2`
		args = append(args, raw)
	}

	rows, err := db(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []*ports.Document
	for rows.Next() {
		doc, err := scanDocument(collection, "", rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return docmatch.Select(docs, q), nil
}

// Close releases the pool.
func (s *DocumentStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *DocumentStore) lock(ctx context.Context, collection, id string) (*ports.Document, error) {
	row := db(ctx, s.pool).QueryRow(ctx, selectColumns+` WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id)
	return scanDocument(collection, id, row)
}

func (s *DocumentStore) upsert(ctx context.Context, collection, id string, fields map[string]any) (*ports.Document, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	row := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO documents (collection, id, fields, version)
		VALUES ($1, $2, $3, nextval('document_version_seq'))
		ON CONFLICT (collection, id) DO UPDATE
		SET fields = EXCLUDED.fields, version = EXCLUDED.version, updated_at = now()
		RETURNING id, fields, version, seq, updated_at`,
		collection, id, raw)
	return scanDocument(collection, id, row)
}

func scanDocument(collection, id string, row pgx.Row) (*ports.Document, error) {
	var (
		raw     []byte
		updated time.Time
		doc     = &ports.Document{Collection: collection}
	)
	if err := row.Scan(&doc.ID, &raw, &doc.Version, &doc.Seq, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("scan %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal(raw, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	doc.UpdateTime = updated.UTC()
	return doc, nil
}

// containment builds the JSONB object that every equality filter implies,
// nesting dotted paths. Other operators are left to the in-memory pass.
func containment(filters []ports.Filter) map[string]any {
	out := map[string]any{}
	for _, f := range filters {
		if f.Op != ports.OpEq || f.Value == nil {
			continue
		}
		value, err := docmatch.NormalizeValue(f.Value)
		if err != nil {
			continue
		}
		parts := strings.Split(f.Field, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = value
	}
	return out
}
