package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/relayhq/botgate/internal/domain"
)

// SQLiteRegistry is a Registry backed by a SQLite database, for deployments
// where tenants are provisioned at runtime rather than in the config file.
type SQLiteRegistry struct {
	db *sql.DB
}

var _ Registry = (*SQLiteRegistry)(nil)

// NewSQLiteRegistry opens (or creates) the registry database at dbPath.
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	r := &SQLiteRegistry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return r, nil
}

func (r *SQLiteRegistry) initSchema() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		token TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Lookup implements Registry.
func (r *SQLiteRegistry) Lookup(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, token FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUnknownTenant
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	return &t, nil
}

// List implements Registry.
func (r *SQLiteRegistry) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, token FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Token); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// Upsert inserts or replaces a tenant's credential.
func (r *SQLiteRegistry) Upsert(ctx context.Context, t *Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, token) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, token = excluded.token`,
		t.ID, t.Name, t.Token,
	)
	return err
}

// Close closes the underlying database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}
