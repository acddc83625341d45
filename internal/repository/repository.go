package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"payment-limiter/internal/model"
)

// ErrNotFound sentinel
var ErrNotFound = errors.New("not found")

// Store persists payment records.
type Store interface {
	Save(ctx context.Context, p *model.Payment) error
	Get(ctx context.Context, id string) (*model.Payment, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	amount      DOUBLE PRECISION NOT NULL,
	status      TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Migrate creates the payments table when missing.
func (r *Repo) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate payments: %w", err)
	}
	return nil
}

func (r *Repo) Save(ctx context.Context, p *model.Payment) error {
	q := `
		INSERT INTO payments (id, user_id, amount, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, retry_count = EXCLUDED.retry_count, updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, q, p.ID, p.UserID, p.Amount, string(p.Status), p.RetryCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save payment %s: %w", p.ID, err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*model.Payment, error) {
	q := `SELECT id, user_id, amount, status, retry_count, created_at, updated_at FROM payments WHERE id = $1`
	var (
		m      model.Payment
		status string
	)
	row := r.DB.QueryRowContext(ctx, q, id)
	if err := row.Scan(&m.ID, &m.UserID, &m.Amount, &status, &m.RetryCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	m.Status = model.PaymentStatus(status)
	return &m, nil
}

// MemoryRepo keeps payments in process memory. Used when no database is
// configured.
type MemoryRepo struct {
	mu       sync.Mutex
	payments map[string]model.Payment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{payments: make(map[string]model.Payment)}
}

func (r *MemoryRepo) Save(_ context.Context, p *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.payments[p.ID]; ok {
		prev.Status = p.Status
		prev.RetryCount = p.RetryCount
		prev.UpdatedAt = p.UpdatedAt
		r.payments[p.ID] = prev
		return nil
	}
	r.payments[p.ID] = *p
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}
