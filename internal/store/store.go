package store

import (
	"context"
	"errors"

	"github.com/joescharf/issuetracker/internal/models"
)

// ErrInvalidID is returned when a document identifier is not a valid ULID.
var ErrInvalidID = errors.New("invalid document id")

// Filter selects documents by top-level field equality. All entries must
// match. Supported values are strings, booleans, numbers and nil; the key
// "_id" matches the document identifier.
type Filter map[string]any

// InsertOneResult acknowledges a single insert.
type InsertOneResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

// UpdateResult acknowledges a single-document update. MatchedCount is 0
// when no document had the requested id.
type UpdateResult struct {
	Acknowledged  bool    `json:"acknowledged"`
	MatchedCount  int64   `json:"matchedCount"`
	ModifiedCount int64   `json:"modifiedCount"`
	UpsertedCount int64   `json:"upsertedCount"`
	UpsertedID    *string `json:"upsertedId"`
}

// DeleteResult acknowledges a single-document delete.
type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// Collection is a named set of documents. Collections exist implicitly:
// reading an unknown collection yields no documents.
type Collection interface {
	Find(ctx context.Context, filter Filter) ([]models.Document, error)
	InsertOne(ctx context.Context, doc models.Document) (*InsertOneResult, error)
	UpdateOne(ctx context.Context, id string, set models.Document) (*UpdateResult, error)
	DeleteOne(ctx context.Context, id string) (*DeleteResult, error)
}

// Store defines the document persistence interface.
type Store interface {
	Collection(name string) Collection
	ListCollections(ctx context.Context) ([]*models.Project, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
