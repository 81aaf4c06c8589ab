package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"treasury/pkg/platform/sentinel"
	txcontext "treasury/pkg/platform/tx"
)

// PostgresSchema creates the vault_state table. Safe to run repeatedly.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS vault_state (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// commitLockID keys the advisory lock that serializes batch commits across
// processes sharing one database.
const commitLockID int64 = 0x7661756c74 // "vault"

const upsertState = `
	INSERT INTO vault_state (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`

// Postgres keeps one row per vault key. Statements join a transaction carried
// in ctx, so other stores (the audit trail) can commit alongside a batch.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies PostgresSchema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("migrate vault_state: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := txcontext.Executor(ctx, p.db).
		QueryRowContext(ctx, `SELECT value FROM vault_state WHERE key = $1`, key).
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select vault_state %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if _, err := txcontext.Executor(ctx, p.db).ExecContext(ctx, upsertState, key, value); err != nil {
		return fmt.Errorf("upsert vault_state %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	if _, err := txcontext.Executor(ctx, p.db).ExecContext(ctx, `DELETE FROM vault_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete vault_state %s: %w", key, err)
	}
	return nil
}

// Apply upserts and deletes the batch inside one transaction. Commits hold a
// transaction-scoped advisory lock while they compare reads, so two batches
// built from the same state cannot both land.
func (p *Postgres) Apply(ctx context.Context, writes []Write, reads ...Read) error {
	if len(writes) == 0 {
		return nil
	}
	return txcontext.Run(ctx, p.db, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, p.db)
		if len(reads) > 0 {
			if err := p.checkReads(ctx, exec, reads); err != nil {
				return err
			}
		}
		var deletes []string
		for _, w := range writes {
			if w.Delete {
				deletes = append(deletes, w.Key)
				continue
			}
			if _, err := exec.ExecContext(ctx, upsertState, w.Key, w.Value); err != nil {
				return fmt.Errorf("upsert vault_state %s: %w", w.Key, err)
			}
		}
		if len(deletes) > 0 {
			if _, err := exec.ExecContext(ctx, `DELETE FROM vault_state WHERE key = ANY($1)`, pq.Array(deletes)); err != nil {
				return fmt.Errorf("delete vault_state batch: %w", err)
			}
		}
		return nil
	})
}

func (p *Postgres) checkReads(ctx context.Context, exec txcontext.Execer, reads []Read) error {
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, commitLockID); err != nil {
		return fmt.Errorf("lock vault_state: %w", err)
	}
	keys := make([]string, 0, len(reads))
	for _, r := range reads {
		keys = append(keys, r.Key)
	}
	rows, err := exec.QueryContext(ctx, `SELECT key, value FROM vault_state WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("select vault_state reads: %w", err)
	}
	defer rows.Close()

	current := make(map[string][]byte, len(keys))
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan vault_state read: %w", err)
		}
		current[key] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate vault_state reads: %w", err)
	}

	for _, r := range reads {
		v, ok := current[r.Key]
		if !r.Holds(v, ok) {
			return fmt.Errorf("%s changed: %w", r.Key, sentinel.ErrConflict)
		}
	}
	return nil
}
