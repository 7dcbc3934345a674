package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/platform/tx"
)

// Postgres is the durable rotation Store. The created_at ordering resolves
// which record is current when two rotations land close together.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Record(ctx context.Context, rec *Record) error {
	q := tx.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO rotation_records (id, pass_id, token, signature, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.PassID.String(), rec.Token, rec.Signature, rec.TokenHash,
		rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert rotation record: %w", err)
	}
	return nil
}

func (s *Postgres) Current(ctx context.Context, passID id.PassID, now time.Time) (*Record, error) {
	q := tx.QuerierFrom(ctx, s.db)
	var (
		rec     Record
		passStr string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, pass_id, token, signature, token_hash, issued_at, expires_at
		FROM rotation_records
		WHERE pass_id = $1 AND expires_at > $2
		ORDER BY issued_at DESC
		LIMIT 1`,
		passID.String(), now,
	).Scan(&rec.ID, &passStr, &rec.Token, &rec.Signature, &rec.TokenHash, &rec.IssuedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("current rotation record: %w", err)
	}
	if rec.PassID, err = id.ParsePassID(passStr); err != nil {
		return nil, fmt.Errorf("corrupt pass id: %w", err)
	}
	return &rec, nil
}

func (s *Postgres) GCExpired(ctx context.Context, passID id.PassID, now time.Time) error {
	q := tx.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx,
		`DELETE FROM rotation_records WHERE pass_id = $1 AND expires_at <= $2`,
		passID.String(), now)
	if err != nil {
		return fmt.Errorf("gc rotation records: %w", err)
	}
	return nil
}
