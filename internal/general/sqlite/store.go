package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/codec"
	"ridemarket/internal/general/docmatch"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// Store implements ports.DocumentStore on a SQLite file.
type Store struct {
	pool   *sqlitex.Pool
	clock  clock.Clock
	logger *logger.Logger
	path   string
}

var _ ports.DocumentStore = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, poolSize int, clk clock.Clock, log *logger.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := openPool(ctx, path, poolSize, log)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, clock: clk, logger: log, path: path}, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (doc *ports.Document, err error) {
	err = s.read(ctx, func(conn *sqlite.Conn) error {
		doc, err = getDoc(conn, collection, id)
		return err
	})
	return doc, err
}

// Set replaces or merges a document, creating it when absent.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (doc *ports.Document, err error) {
	normalized, err := docmatch.Normalize(fields)
	if err != nil {
		return nil, err
	}
	err = s.write(ctx, func(conn *sqlite.Conn) error {
		existing, err := getDoc(conn, collection, id)
		switch {
		case errors.Is(err, ports.ErrNotFound):
			existing = nil
		case err != nil:
			return err
		case merge:
			patch := make(ports.Patch, len(normalized))
			for k, v := range normalized {
				patch[k] = v
			}
			if normalized, err = docmatch.ApplyPatch(existing.Fields, patch); err != nil {
				return err
			}
		}
		doc, err = s.put(conn, collection, id, normalized, existing)
		return err
	})
	return doc, err
}

// Create stores a new document under a random id.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (doc *ports.Document, err error) {
	normalized, err := docmatch.Normalize(fields)
	if err != nil {
		return nil, err
	}
	err = s.write(ctx, func(conn *sqlite.Conn) error {
		doc, err = s.put(conn, collection, uuid.NewString(), normalized, nil)
		return err
	})
	return doc, err
}

// Update applies patch if every precondition holds on the current state.
func (s *Store) Update(ctx context.Context, collection, id string, patch ports.Patch, conds ...ports.Precondition) (doc *ports.Document, err error) {
	err = s.write(ctx, func(conn *sqlite.Conn) error {
		existing, err := getDoc(conn, collection, id)
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
		doc, err = s.put(conn, collection, id, next, existing)
		return err
	})
	return doc, err
}

// Delete removes a document and returns the deletion version.
func (s *Store) Delete(ctx context.Context, collection, id string) (version int64, err error) {
	err = s.write(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM documents WHERE collection = ? AND id = ?`,
			&sqlitex.ExecOptions{Args: []any{collection, id}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
		}
		version, err = nextCounter(conn, "version")
		return err
	})
	return version, err
}

// Query decodes the whole collection and applies q in memory.
func (s *Store) Query(ctx context.Context, collection string, q ports.Query) (docs []*ports.Document, err error) {
	err = s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, fields, version, seq, updated_at FROM documents WHERE collection = ?`,
			&sqlitex.ExecOptions{
				Args: []any{collection},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					doc, err := scanDoc(collection, stmt)
					if err != nil {
						return err
					}
					docs = append(docs, doc)
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return docmatch.Select(docs, q), nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: closing %s: %w", s.path, err)
	}
	s.logger.Info(context.Background(), "sqlite_closed", "SQLite pool closed", map[string]any{"path": s.path})
	return nil
}

func (s *Store) read(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

func (s *Store) write(ctx context.Context, fn func(*sqlite.Conn) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(conn)
}

// put writes fields under a fresh version. Seq is kept from existing or
// allocated from the collection counter.
func (s *Store) put(conn *sqlite.Conn, collection, id string, fields map[string]any, existing *ports.Document) (*ports.Document, error) {
	blob, err := codec.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode %s/%s: %w", collection, id, err)
	}
	version, err := nextCounter(conn, "version")
	if err != nil {
		return nil, err
	}
	var seq int64
	if existing != nil {
		seq = existing.Seq
	} else if seq, err = nextCounter(conn, "seq:"+collection); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC().Truncate(time.Microsecond)

	err = sqlitex.Execute(conn, `
		INSERT INTO documents (collection, id, fields, version, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE
		SET fields = excluded.fields, version = excluded.version, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{collection, id, blob, version, seq, now.UnixMicro()}})
	if err != nil {
		return nil, fmt.Errorf("sqlite: write %s/%s: %w", collection, id, err)
	}
	return &ports.Document{
		Collection: collection,
		ID:         id,
		Fields:     docmatch.Clone(fields),
		Version:    version,
		Seq:        seq,
		UpdateTime: now,
	}, nil
}

func nextCounter(conn *sqlite.Conn, name string) (int64, error) {
	var value int64
	err := sqlitex.Execute(conn, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1
		RETURNING value`,
		&sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("sqlite: counter %s: %w", name, err)
	}
	return value, nil
}

func getDoc(conn *sqlite.Conn, collection, id string) (*ports.Document, error) {
	var doc *ports.Document
	err := sqlitex.Execute(conn,
		`SELECT id, fields, version, seq, updated_at FROM documents WHERE collection = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{collection, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				doc, err = scanDoc(collection, stmt)
				return err
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite: read %s/%s: %w", collection, id, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
	}
	return doc, nil
}

func scanDoc(collection string, stmt *sqlite.Stmt) (*ports.Document, error) {
	blob := make([]byte, stmt.ColumnLen(1))
	stmt.ColumnBytes(1, blob)

	doc := &ports.Document{
		Collection: collection,
		ID:         stmt.ColumnText(0),
		Version:    stmt.ColumnInt64(2),
		Seq:        stmt.ColumnInt64(3),
		UpdateTime: time.UnixMicro(stmt.ColumnInt64(4)).UTC(),
	}
	if err := codec.Unmarshal(blob, &doc.Fields); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s/%s: %w", collection, doc.ID, err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]any{}
	}
	return doc, nil
}
