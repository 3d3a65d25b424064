package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentregistry/internal/models"
	"agentregistry/internal/storage/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{
		pool: pool,
	}, nil
}

// Migrate applies the embedded schema migrations
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateIdentity reserves the next id from the counter row and inserts the identity
func (r *PostgresRepository) CreateIdentity(ctx context.Context, owner, pointer string, at time.Time) (*models.Identity, error) {
	identity := &models.Identity{
		Owner:     owner,
		Pointer:   pointer,
		CreatedAt: at,
		UpdatedAt: at,
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`UPDATE registry_counter SET next_id = next_id + 1 RETURNING next_id - 1`,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to reserve identity id: %w", err)
		}
		identity.ID = uint64(id)

		query := `
			INSERT INTO identities (id, owner, approved, pointer, created_at, updated_at)
			VALUES ($1, $2, '', $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, query, id, owner, pointer, at, at); err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return identity, nil
}

// GetIdentity retrieves an identity by id
func (r *PostgresRepository) GetIdentity(ctx context.Context, id uint64) (*models.Identity, error) {
	query := `
		SELECT id, owner, approved, pointer, created_at, updated_at
		FROM identities
		WHERE id = $1
	`

	var identity models.Identity
	var rawID int64

	err := r.pool.QueryRow(ctx, query, int64(id)).Scan(
		&rawID,
		&identity.Owner,
		&identity.Approved,
		&identity.Pointer,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	identity.ID = uint64(rawID)
	return &identity, nil
}

// NextIdentityID reads the counter without reserving
func (r *PostgresRepository) NextIdentityID(ctx context.Context) (uint64, error) {
	var next int64
	if err := r.pool.QueryRow(ctx, `SELECT next_id FROM registry_counter`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to read identity counter: %w", err)
	}
	return uint64(next), nil
}

// UpdatePointer overwrites the identity pointer
func (r *PostgresRepository) UpdatePointer(ctx context.Context, id uint64, pointer string, at time.Time) error {
	return r.execOne(ctx, "update pointer", id,
		`UPDATE identities SET pointer = $2, updated_at = $3 WHERE id = $1`,
		int64(id), pointer, at)
}

// UpdateOwner changes the owner and clears the single approval
func (r *PostgresRepository) UpdateOwner(ctx context.Context, id uint64, newOwner string, at time.Time) error {
	return r.execOne(ctx, "update owner", id,
		`UPDATE identities SET owner = $2, approved = '', updated_at = $3 WHERE id = $1`,
		int64(id), newOwner, at)
}

// SetApproved sets or clears the single approval
func (r *PostgresRepository) SetApproved(ctx context.Context, id uint64, principal string, at time.Time) error {
	return r.execOne(ctx, "set approval", id,
		`UPDATE identities SET approved = $2, updated_at = $3 WHERE id = $1`,
		int64(id), principal, at)
}

// execOne runs an UPDATE that must hit exactly one identity row
func (r *PostgresRepository) execOne(ctx context.Context, op string, id uint64, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetOperator grants or revokes an operator for every identity of owner
func (r *PostgresRepository) SetOperator(ctx context.Context, owner, operator string, enabled bool) error {
	var err error
	if enabled {
		_, err = r.pool.Exec(ctx, `
			INSERT INTO identity_operators (owner, operator) VALUES ($1, $2)
			ON CONFLICT (owner, operator) DO NOTHING
		`, owner, operator)
	} else {
		_, err = r.pool.Exec(ctx,
			`DELETE FROM identity_operators WHERE owner = $1 AND operator = $2`,
			owner, operator)
	}
	if err != nil {
		return fmt.Errorf("failed to set operator: %w", err)
	}
	return nil
}

// IsOperator reports whether operator acts for all of owner's identities
func (r *PostgresRepository) IsOperator(ctx context.Context, owner, operator string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM identity_operators WHERE owner = $1 AND operator = $2)
	`, owner, operator).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check operator: %w", err)
	}
	return exists, nil
}

// SetMetadata upserts the value for key
func (r *PostgresRepository) SetMetadata(ctx context.Context, id uint64, key string, value []byte, at time.Time) error {
	if value == nil {
		value = []byte{}
	}

	query := `
		INSERT INTO identity_metadata (identity_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, int64(id), key, value, at); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}

// GetMetadata returns the value for key; unset keys return an empty value
func (r *PostgresRepository) GetMetadata(ctx context.Context, id uint64, key string) ([]byte, bool, error) {
	query := `
		SELECT i.id, m.value
		FROM identities i
		LEFT JOIN identity_metadata m ON m.identity_id = i.id AND m.key = $2
		WHERE i.id = $1
	`

	var rawID int64
	var value []byte
	err := r.pool.QueryRow(ctx, query, int64(id), key).Scan(&rawID, &value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("identity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get metadata: %w", err)
	}

	if value == nil {
		return []byte{}, false, nil
	}
	return value, true, nil
}

// SaveEvent appends a registry event
func (r *PostgresRepository) SaveEvent(ctx context.Context, event *models.RegistryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	query := `
		INSERT INTO registry_events (identity_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, int64(event.IdentityID), string(event.Type), payload, event.Timestamp); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListEvents lists events for an identity, oldest first
func (r *PostgresRepository) ListEvents(ctx context.Context, id uint64, limit, offset int) ([]models.RegistryEvent, error) {
	query := `
		SELECT payload
		FROM registry_events
		WHERE identity_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, int64(id), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []models.RegistryEvent{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		var event models.RegistryEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
