package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-limiter/internal/model"
)

func testPayment() *model.Payment {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Payment{
		ID:        xid.New().String(),
		UserID:    "u1",
		Amount:    10,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// exerciseStore runs the same contract against every Store implementation.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	p := testPayment()
	require.NoError(t, s.Save(ctx, p))

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.UserID, got.UserID)
	assert.Equal(t, model.StatusPending, got.Status)

	created := p.CreatedAt
	p.Status = model.StatusSuccess
	p.RetryCount = 2
	p.UpdatedAt = p.UpdatedAt.Add(time.Second)
	p.CreatedAt = p.CreatedAt.Add(time.Hour)
	require.NoError(t, s.Save(ctx, p))

	got, err = s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.True(t, created.Equal(got.CreatedAt), "created_at must not change on update")
}

func TestMemoryRepo(t *testing.T) {
	exerciseStore(t, NewMemoryRepo())
}

func TestRepo_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping integration test: DATABASE_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Skipping integration test: Postgres not available (%v)", err)
	}

	repo := NewRepo(db)
	require.NoError(t, repo.Migrate(ctx))
	exerciseStore(t, repo)
}
