package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issuetracker/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Documents are kept as JSON text and filtered with the JSON1 functions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access and avoids "database is locked" under concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// ParseID validates a document identifier and returns its canonical form.
func ParseID(id string) (string, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u.String(), nil
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Collection returns a handle on the named collection.
func (s *SQLiteStore) Collection(name string) Collection {
	return &sqliteCollection{db: s.db, name: name}
}

// ListCollections returns every collection holding at least one document.
func (s *SQLiteStore) ListCollections(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, COUNT(*),
			SUM(CASE WHEN json_type(body, '$."open"') = 'true' THEN 1 ELSE 0 END)
		FROM documents GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		if err := rows.Scan(&p.Name, &p.IssueCount, &p.OpenCount); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Collections ---

type sqliteCollection struct {
	db   *sql.DB
	name string
}

func (c *sqliteCollection) Find(ctx context.Context, filter Filter) ([]models.Document, error) {
	where, args, err := filterClause(filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, body FROM documents WHERE collection = ?"
	args = append([]any{c.name}, args...)
	if where != "" {
		query += " AND " + where
	}
	query += " ORDER BY seq"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		doc[models.FieldID] = id
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *sqliteCollection) InsertOne(ctx context.Context, doc models.Document) (*InsertOneResult, error) {
	body, err := encodeBody(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	id := newULID()
	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.name, id, body, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return &InsertOneResult{Acknowledged: true, InsertedID: id}, nil
}

func (c *sqliteCollection) UpdateOne(ctx context.Context, id string, set models.Document) (*UpdateResult, error) {
	id, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var body string
	err = tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", c.name, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return &UpdateResult{Acknowledged: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}

	result := &UpdateResult{Acknowledged: true, MatchedCount: 1}
	if len(set) == 0 {
		return result, nil
	}

	doc, err := decodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	for k, v := range set {
		if k == models.FieldID {
			continue
		}
		doc[k] = v
	}

	updated, err := encodeBody(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if updated == body {
		return result, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?",
		updated, time.Now().UTC(), c.name, id,
	); err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	result.ModifiedCount = 1
	return result, nil
}

func (c *sqliteCollection) DeleteOne(ctx context.Context, id string) (*DeleteResult, error) {
	id, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	res, err := c.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", c.name, id)
	if err != nil {
		return nil, fmt.Errorf("delete document %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return &DeleteResult{Acknowledged: true, DeletedCount: n}, nil
}

// --- Encoding ---

// encodeBody serializes a document without its _id. encoding/json sorts map
// keys, so equal documents encode to equal text.
func encodeBody(doc models.Document) (string, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == models.FieldID {
			continue
		}
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeBody(body string) (models.Document, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	doc := models.Document{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// filterClause builds the SQL conditions for a Filter. Keys are emitted in
// sorted order so the generated query is deterministic.
func filterClause(filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conditions []string
	var args []any
	for _, key := range keys {
		value := filter[key]

		if key == models.FieldID {
			id, ok := value.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidID, value)
			}
			id, err := ParseID(id)
			if err != nil {
				return "", nil, err
			}
			conditions = append(conditions, "id = ?")
			args = append(args, id)
			continue
		}

		if key == "" || strings.ContainsAny(key, `"\`) {
			return "", nil, fmt.Errorf("unsupported filter key %q", key)
		}
		path := `$."` + key + `"`

		switch v := value.(type) {
		case nil:
			conditions = append(conditions, "json_type(body, ?) = 'null'")
			args = append(args, path)
		case bool:
			conditions = append(conditions, "json_type(body, ?) = ?")
			if v {
				args = append(args, path, "true")
			} else {
				args = append(args, path, "false")
			}
		case string:
			conditions = append(conditions, "(json_type(body, ?) = 'text' AND json_extract(body, ?) = ?)")
			args = append(args, path, path, v)
		case json.Number, float64, float32, int, int64:
			f, err := toFloat(v)
			if err != nil {
				return "", nil, fmt.Errorf("filter %s: %w", key, err)
			}
			conditions = append(conditions, "(json_type(body, ?) IN ('integer', 'real') AND json_extract(body, ?) = ?)")
			args = append(args, path, path, f)
		default:
			return "", nil, fmt.Errorf("unsupported filter value for %s: %T", key, value)
		}
	}

	return strings.Join(conditions, " AND "), args, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("not a number: %T", v)
}

