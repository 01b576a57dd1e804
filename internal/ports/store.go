package ports

import (
	"context"
	"errors"
	"time"
)

// Logical collections.
const (
	CollectionUsers          = "users"
	CollectionRides          = "rides"
	CollectionChatMessages   = "chatMessages"
	CollectionTariffSettings = "tariffSettings"
	CollectionRoleGrants     = "roleGrants"
)

// TariffDocumentID is the id of the singleton tariff document.
const TariffDocumentID = "app"

var (
	ErrNotFound           = errors.New("document not found")
	ErrAlreadyExists      = errors.New("document already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Document is one stored record. Fields holds JSON-compatible values only
// (string, float64, bool, nil, []any, map[string]any).
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`

	// Version grows on every write to any document, so a higher version is
	// always a later state of the same document.
	Version int64 `json:"version"`

	// Seq is the creation order within the collection; it never changes.
	Seq        int64     `json:"seq"`
	UpdateTime time.Time `json:"update_time"`
}

// Patch maps dotted field paths to new values. A nil value deletes the field.
type Patch map[string]any

// PreconditionOp compares a stored field during a conditional write.
type PreconditionOp string

const (
	PreEquals  PreconditionOp = "=="
	PreAbsent  PreconditionOp = "absent"
	PrePresent PreconditionOp = "present"
)

// Precondition must hold on the stored document at apply time.
type Precondition struct {
	Field string
	Op    PreconditionOp
	Value any
}

// Equals is a precondition on field == value.
func Equals(field string, value any) Precondition {
	return Precondition{Field: field, Op: PreEquals, Value: value}
}

// Absent is a precondition on field not being set.
func Absent(field string) Precondition {
	return Precondition{Field: field, Op: PreAbsent}
}

// FilterOp compares a field in a query filter.
type FilterOp string

const (
	OpEq  FilterOp = "=="
	OpNe  FilterOp = "!="
	OpLt  FilterOp = "<"
	OpLte FilterOp = "<="
	OpGt  FilterOp = ">"
	OpGte FilterOp = ">="
	OpIn  FilterOp = "in"
)

// Filter restricts a query to documents whose field matches.
type Filter struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// Where builds a Filter.
func Where(field string, op FilterOp, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects, orders and bounds documents of one collection.
// Ties on OrderBy fall back to creation order.
type Query struct {
	Filters []Filter `json:"filters,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
	Desc    bool     `json:"desc,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Change describes a committed write. Doc is nil for deletions.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Version    int64     `json:"version"`
	Doc        *Document `json:"doc,omitempty"`
	Origin     string    `json:"origin,omitempty"`
}

// DocumentStore is the persistence port behind the sync layer. Every write
// returns the committed state so the caller can broadcast it.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set replaces (or with merge, patches) the document, creating it if needed.
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (*Document, error)
	// Create stores a new document under a generated id.
	Create(ctx context.Context, collection string, fields map[string]any) (*Document, error)
	// Update patches an existing document if every precondition holds.
	Update(ctx context.Context, collection, id string, patch Patch, conds ...Precondition) (*Document, error)
	// Delete removes a document and returns the deletion version.
	Delete(ctx context.Context, collection, id string) (int64, error)
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)
	Close() error
}

// UnitOfWork is used to run several store operations in one transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
