package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DH-Cologne/ObjectsRepositoryServer/pkg/objectsrepository"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements objectsrepository.EntityStore and
// objectsrepository.AccountStore using PostgreSQL. Documents are stored
// as jsonb rows keyed by (collection, id); the identifier lives only in
// the key column, never inside the payload.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &objectsrepository.StoreError{Backend: "postgres", Op: operation,
				Err: fmt.Errorf("duplicate entry: %w", objectsrepository.ErrStoreFailure)}
		case "23502": // not_null_violation
			return &objectsrepository.StoreError{Backend: "postgres", Op: operation,
				Err: fmt.Errorf("required column %s is missing: %w", pgErr.ColumnName, objectsrepository.ErrStoreFailure)}
		case "42P01": // undefined_table
			return &objectsrepository.StoreError{Backend: "postgres", Op: operation,
				Err: fmt.Errorf("table does not exist - run EnsureSchema first: %w", objectsrepository.ErrStoreFailure)}
		default:
			return &objectsrepository.StoreError{Backend: "postgres", Op: operation,
				Err: fmt.Errorf("%s (code %s): %w", pgErr.Message, pgErr.Code, objectsrepository.ErrStoreFailure)}
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return objectsrepository.ErrNotFound
	}

	return &objectsrepository.StoreError{Backend: "postgres", Op: operation, Err: err}
}

// EnsureSchema creates the two tables the repository needs.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS entities (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);
		CREATE TABLE IF NOT EXISTS accounts (
			username   TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`

	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Entity operations

func (r *Repository) Upsert(ctx context.Context, collection objectsrepository.Collection, id string, doc objectsrepository.Document) error {
	stored := doc.Clone()
	delete(stored, objectsrepository.FieldID)

	payload, err := json.Marshal(stored)
	if err != nil {
		return &objectsrepository.StoreError{Backend: "postgres", Op: "upsert", Err: err}
	}

	query := `
		INSERT INTO entities (collection, id, doc, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, string(collection), id, payload); err != nil {
		return r.handlePostgresError("upsert entity", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, collection objectsrepository.Collection, id string) (objectsrepository.Document, error) {
	query := `SELECT doc FROM entities WHERE collection = $1 AND id = $2`

	var payload []byte
	err := r.db.QueryRow(ctx, query, string(collection), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, objectsrepository.ErrNotFound
		}
		return nil, r.handlePostgresError("get entity", err)
	}

	doc, err := unmarshalDocument(payload)
	if err != nil {
		return nil, &objectsrepository.StoreError{Backend: "postgres", Op: "get entity", Err: err}
	}
	doc.SetID(id)
	return doc, nil
}

func (r *Repository) All(ctx context.Context, collection objectsrepository.Collection) ([]objectsrepository.Document, error) {
	query := `SELECT id, doc FROM entities WHERE collection = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, string(collection))
	if err != nil {
		return nil, r.handlePostgresError("list entities", err)
	}
	defer rows.Close()

	var result []objectsrepository.Document
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, r.handlePostgresError("list entities", err)
		}
		doc, err := unmarshalDocument(payload)
		if err != nil {
			return nil, &objectsrepository.StoreError{Backend: "postgres", Op: "list entities", Err: err}
		}
		doc.SetID(id)
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list entities", err)
	}
	return result, nil
}

func (r *Repository) Delete(ctx context.Context, collection objectsrepository.Collection, id string) error {
	query := `DELETE FROM entities WHERE collection = $1 AND id = $2`

	tag, err := r.db.Exec(ctx, query, string(collection), id)
	if err != nil {
		return r.handlePostgresError("delete entity", err)
	}
	if tag.RowsAffected() == 0 {
		return objectsrepository.ErrNotFound
	}
	return nil
}

// Account operations

func (r *Repository) GetAccount(ctx context.Context, username string) (*objectsrepository.Account, error) {
	query := `SELECT doc FROM accounts WHERE username = $1`

	var payload []byte
	err := r.db.QueryRow(ctx, query, username).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, objectsrepository.ErrAccountNotFound
		}
		return nil, r.handlePostgresError("get account", err)
	}

	var account objectsrepository.Account
	if err := json.Unmarshal(payload, &account); err != nil {
		return nil, &objectsrepository.StoreError{Backend: "postgres", Op: "get account", Err: err}
	}
	if account.Data == nil {
		account.Data = make(map[string][]string)
	}
	return &account, nil
}

func (r *Repository) SaveAccount(ctx context.Context, account *objectsrepository.Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return &objectsrepository.StoreError{Backend: "postgres", Op: "save account", Err: err}
	}

	query := `
		INSERT INTO accounts (username, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, account.Username, payload); err != nil {
		return r.handlePostgresError("save account", err)
	}
	return nil
}

func (r *Repository) AllAccounts(ctx context.Context) ([]*objectsrepository.Account, error) {
	query := `SELECT doc FROM accounts ORDER BY username`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list accounts", err)
	}
	defer rows.Close()

	var result []*objectsrepository.Account
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, r.handlePostgresError("list accounts", err)
		}
		var account objectsrepository.Account
		if err := json.Unmarshal(payload, &account); err != nil {
			return nil, &objectsrepository.StoreError{Backend: "postgres", Op: "list accounts", Err: err}
		}
		if account.Data == nil {
			account.Data = make(map[string][]string)
		}
		result = append(result, &account)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list accounts", err)
	}
	return result, nil
}

func unmarshalDocument(payload []byte) (objectsrepository.Document, error) {
	var doc objectsrepository.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = objectsrepository.Document{}
	}
	return doc, nil
}
