// Package repository stores the reset token redemption ledger with bun.
package repository

import (
	"context"
	"database/sql"
	"time"

	accounts "github.com/goliatone/go-accounts-web"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ accounts.Redeemer = (*RedemptionRepository)(nil)

// RedemptionModel is the Bun model for a consumed reset token.
type RedemptionModel struct {
	bun.BaseModel `bun:"table:token_redemptions"`

	TokenID    string    `bun:"token_id,pk"`
	UserID     int       `bun:"user_id,notnull"`
	RedeemedAt time.Time `bun:"redeemed_at,notnull"`
}

// RedemptionRepository implements accounts.Redeemer using Bun.
type RedemptionRepository struct {
	db  *bun.DB
	now func() time.Time
}

// NewRedemptionRepository creates a new repository.
func NewRedemptionRepository(db *bun.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db, now: time.Now}
}

// OpenSQLite opens dsn through sqliteshim, e.g. "file:ledger.db?cache=shared".
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open token ledger")
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the ledger table.
func (r *RedemptionRepository) Migrate(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*RedemptionModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Redeem records tokenID. Only the first caller succeeds; later callers get
// accounts.ErrTokenRedeemed.
func (r *RedemptionRepository) Redeem(ctx context.Context, tokenID string, userID int) error {
	model := &RedemptionModel{
		TokenID:    tokenID,
		UserID:     userID,
		RedeemedAt: r.now().UTC(),
	}

	res, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (token_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record token redemption")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record token redemption")
	}
	if n == 0 {
		return accounts.ErrTokenRedeemed
	}
	return nil
}

// IsRedeemed implements accounts.Redeemer.
func (r *RedemptionRepository) IsRedeemed(ctx context.Context, tokenID string) (bool, error) {
	return r.db.NewSelect().
		Model((*RedemptionModel)(nil)).
		Where("token_id = ?", tokenID).
		Exists(ctx)
}

// Purge deletes redemptions older than before. Tokens that old are already
// rejected by their max age, so their rows are no longer needed.
func (r *RedemptionRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RedemptionModel)(nil)).
		Where("redeemed_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
