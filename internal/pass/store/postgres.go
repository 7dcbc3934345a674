package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/musicamatics/queueskip/internal/pass/models"
	id "github.com/musicamatics/queueskip/pkg/domain"
	"github.com/musicamatics/queueskip/pkg/platform/tx"
)

// Postgres is the durable Store. Status flips are single conditional UPDATEs
// so the exactly-once guarantee rides on the database's row lock, not on a
// read-then-write in Go.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tx.Run(ctx, s.db, fn)
}

func (s *Postgres) CreatePass(ctx context.Context, p *models.Pass) error {
	restrictions, err := json.Marshal(p.Restrictions)
	if err != nil {
		return fmt.Errorf("marshal restrictions: %w", err)
	}
	q := tx.QuerierFrom(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO passes (id, user_id, venue_id, pass_type_id, status, valid_from, valid_until, restrictions, receipt_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID.String(), p.UserID.String(), p.VenueID.String(), p.PassTypeID.String(),
		string(p.Status), p.ValidFrom, p.ValidUntil, restrictions, nullable(p.ReceiptID), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

const passColumns = `id, user_id, venue_id, pass_type_id, status, valid_from, valid_until, restrictions, COALESCE(receipt_id, ''), created_at`

func (s *Postgres) GetPass(ctx context.Context, passID id.PassID) (*models.Pass, error) {
	q := tx.QuerierFrom(ctx, s.db)
	row := q.QueryRowContext(ctx,
		`SELECT `+passColumns+` FROM passes WHERE id = $1`, passID.String())
	return scanPass(row)
}

func (s *Postgres) ListUserPasses(ctx context.Context, userID id.UserID, venueID id.VenueID) ([]*models.Pass, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx,
		`SELECT `+passColumns+` FROM passes
		 WHERE user_id = $1 AND venue_id = $2
		 ORDER BY created_at DESC`,
		userID.String(), venueID.String())
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var out []*models.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LockAllocation takes a transaction-scoped advisory lock keyed by user and
// pass type. READ COMMITTED lets two racing count-then-create transactions
// both see the pre-insert count; the lock forces the loser to wait until the
// winner's inserts are committed and visible.
func (s *Postgres) LockAllocation(ctx context.Context, userID id.UserID, passTypeID id.PassTypeID) error {
	q := tx.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		userID.String()+":"+passTypeID.String())
	if err != nil {
		return fmt.Errorf("lock allocation: %w", err)
	}
	return nil
}

func (s *Postgres) CountIssuedSince(ctx context.Context, userID id.UserID, passTypeID id.PassTypeID, cutoff time.Time) (int, error) {
	q := tx.QuerierFrom(ctx, s.db)
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM passes
		 WHERE user_id = $1 AND pass_type_id = $2 AND created_at >= $3`,
		userID.String(), passTypeID.String(), cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count issued passes: %w", err)
	}
	return n, nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, passID id.PassID, from, to models.Status, now time.Time) error {
	q := tx.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx,
		`UPDATE passes SET status = $1
		 WHERE id = $2 AND status = $3 AND valid_until > $4`,
		string(to), passID.String(), string(from), now)
	if err != nil {
		return fmt.Errorf("update pass status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pass status: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// The conditional update lost; classify why for the caller.
	var status string
	var validUntil time.Time
	err = q.QueryRowContext(ctx,
		`SELECT status, valid_until FROM passes WHERE id = $1`,
		passID.String()).Scan(&status, &validUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("classify status conflict: %w", err)
	}
	if models.Status(status) != from {
		return ErrAlreadyUsed
	}
	return ErrExpired
}

func (s *Postgres) AppendRedemption(ctx context.Context, rec *models.RedemptionRecord) error {
	q := tx.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO redemption_records (id, pass_id, staff_id, venue_id, receipt_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.PassID.String(), rec.StaffID.String(), rec.VenueID.String(),
		nullable(rec.ReceiptID), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert redemption record: %w", err)
	}
	return nil
}

func (s *Postgres) AppendTransfer(ctx context.Context, rec *models.TransferRecord) error {
	q := tx.QuerierFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO transfer_records (id, pass_id, new_pass_id, from_user_id, to_user_id, receipt_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.PassID.String(), rec.NewPassID.String(),
		rec.FromUserID.String(), rec.ToUserID.String(), nullable(rec.ReceiptID), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer record: %w", err)
	}
	return nil
}

func (s *Postgres) SetPassReceipt(ctx context.Context, passID id.PassID, receiptID string) error {
	return s.setReceipt(ctx, `UPDATE passes SET receipt_id = $1 WHERE id = $2`, receiptID, passID.String())
}

func (s *Postgres) SetRedemptionReceipt(ctx context.Context, recordID, receiptID string) error {
	return s.setReceipt(ctx, `UPDATE redemption_records SET receipt_id = $1 WHERE id = $2`, receiptID, recordID)
}

func (s *Postgres) SetTransferReceipt(ctx context.Context, recordID, receiptID string) error {
	return s.setReceipt(ctx, `UPDATE transfer_records SET receipt_id = $1 WHERE id = $2`, receiptID, recordID)
}

func (s *Postgres) setReceipt(ctx context.Context, query, receiptID, rowID string) error {
	q := tx.QuerierFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, query, receiptID, rowID)
	if err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) GetPassType(ctx context.Context, typeID id.PassTypeID) (*models.PassType, error) {
	q := tx.QuerierFrom(ctx, s.db)
	var (
		pt           models.PassType
		idStr        string
		venueStr     string
		restrictions []byte
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, venue_id, name, restrictions, validity_hours, transferable
		FROM pass_types WHERE id = $1`, typeID.String(),
	).Scan(&idStr, &venueStr, &pt.Name, &restrictions, &pt.ValidityHours, &pt.Transferable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pass type: %w", err)
	}
	if pt.ID, err = id.ParsePassTypeID(idStr); err != nil {
		return nil, fmt.Errorf("corrupt pass type id: %w", err)
	}
	if pt.VenueID, err = id.ParseVenueID(venueStr); err != nil {
		return nil, fmt.Errorf("corrupt venue id: %w", err)
	}
	if err := json.Unmarshal(restrictions, &pt.Restrictions); err != nil {
		return nil, fmt.Errorf("unmarshal restrictions: %w", err)
	}
	return &pt, nil
}

func (s *Postgres) CreatePassType(ctx context.Context, pt *models.PassType) error {
	restrictions, err := json.Marshal(pt.Restrictions)
	if err != nil {
		return fmt.Errorf("marshal restrictions: %w", err)
	}
	q := tx.QuerierFrom(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO pass_types (id, venue_id, name, restrictions, validity_hours, transferable)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		pt.ID.String(), pt.VenueID.String(), pt.Name, restrictions, pt.ValidityHours, pt.Transferable)
	if err != nil {
		return fmt.Errorf("insert pass type: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (*models.Pass, error) {
	var (
		p            models.Pass
		passStr      string
		userStr      string
		venueStr     string
		typeStr      string
		status       string
		restrictions []byte
	)
	err := row.Scan(&passStr, &userStr, &venueStr, &typeStr, &status,
		&p.ValidFrom, &p.ValidUntil, &restrictions, &p.ReceiptID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pass: %w", err)
	}

	if p.ID, err = id.ParsePassID(passStr); err != nil {
		return nil, fmt.Errorf("corrupt pass id: %w", err)
	}
	if p.UserID, err = id.ParseUserID(userStr); err != nil {
		return nil, fmt.Errorf("corrupt user id: %w", err)
	}
	if p.VenueID, err = id.ParseVenueID(venueStr); err != nil {
		return nil, fmt.Errorf("corrupt venue id: %w", err)
	}
	if p.PassTypeID, err = id.ParsePassTypeID(typeStr); err != nil {
		return nil, fmt.Errorf("corrupt pass type id: %w", err)
	}
	p.Status = models.Status(status)
	if len(restrictions) > 0 {
		if err := json.Unmarshal(restrictions, &p.Restrictions); err != nil {
			return nil, fmt.Errorf("unmarshal restrictions: %w", err)
		}
	}
	return &p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
