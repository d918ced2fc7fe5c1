package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/synthara/forge-api/internal/models"
)

var ErrCurveNotFound = errors.New("bonding curve not found")

type BondingCurveRepository interface {
	GetByContract(ctx context.Context, contractAddress string) (models.BondingCurve, error)
	ListActive(ctx context.Context) ([]models.BondingCurve, error)

	// InsertTrade persists a trade keyed by (contract_address,
	// transaction_hash). Returns false when the pair was already seen.
	InsertTrade(ctx context.Context, trade models.BondingCurveTrade) (bool, error)

	// UpdateCurveState refreshes the live price/supply/market-cap snapshot
	// and adds volumeDelta to the cumulative volume.
	UpdateCurveState(ctx context.Context, contractAddress, price, supply, marketCap, volumeDelta string) error

	// MarkGraduated flips the graduated flag. The transition is one-way;
	// returns false when the curve had already graduated.
	MarkGraduated(ctx context.Context, contractAddress, poolAddress string) (bool, error)

	InsertEarning(ctx context.Context, earning models.CreatorEarning) error
}

type bondingCurveRepository struct {
	db *sql.DB
}

func NewBondingCurveRepository(db *sql.DB) BondingCurveRepository {
	return &bondingCurveRepository{db: db}
}

const curveColumns = `
	id, dataset_id, creator_id, contract_address, current_price::text,
	total_supply::text, market_cap::text, total_volume::text, graduated,
	pool_address, created_at, updated_at
`

func (r *bondingCurveRepository) GetByContract(ctx context.Context, contractAddress string) (models.BondingCurve, error) {
	query := `SELECT ` + curveColumns + ` FROM bonding_curves WHERE contract_address = $1`
	var curve models.BondingCurve
	err := r.db.QueryRowContext(ctx, query, contractAddress).Scan(
		&curve.ID,
		&curve.DatasetID,
		&curve.CreatorID,
		&curve.ContractAddress,
		&curve.CurrentPrice,
		&curve.TotalSupply,
		&curve.MarketCap,
		&curve.TotalVolume,
		&curve.Graduated,
		&curve.PoolAddress,
		&curve.CreatedAt,
		&curve.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return curve, ErrCurveNotFound
		}
		return curve, err
	}
	return curve, nil
}

func (r *bondingCurveRepository) ListActive(ctx context.Context) ([]models.BondingCurve, error) {
	query := `SELECT ` + curveColumns + ` FROM bonding_curves ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var curves []models.BondingCurve
	for rows.Next() {
		var curve models.BondingCurve
		if err := rows.Scan(
			&curve.ID,
			&curve.DatasetID,
			&curve.CreatorID,
			&curve.ContractAddress,
			&curve.CurrentPrice,
			&curve.TotalSupply,
			&curve.MarketCap,
			&curve.TotalVolume,
			&curve.Graduated,
			&curve.PoolAddress,
			&curve.CreatedAt,
			&curve.UpdatedAt,
		); err != nil {
			return nil, err
		}
		curves = append(curves, curve)
	}
	return curves, rows.Err()
}

func (r *bondingCurveRepository) InsertTrade(ctx context.Context, trade models.BondingCurveTrade) (bool, error) {
	query := `
		INSERT INTO bonding_curve_trades
			(contract_address, transaction_hash, trade_type, trader_address, amount, price, fee, block_number)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8)
		ON CONFLICT (contract_address, transaction_hash) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		trade.ContractAddress,
		trade.TransactionHash,
		trade.Type,
		trade.TraderAddress,
		trade.Amount,
		trade.Price,
		trade.Fee,
		trade.BlockNumber,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *bondingCurveRepository) UpdateCurveState(ctx context.Context, contractAddress, price, supply, marketCap, volumeDelta string) error {
	query := `
		UPDATE bonding_curves
		   SET current_price = $2::numeric,
		       total_supply = $3::numeric,
		       market_cap = $4::numeric,
		       total_volume = total_volume + $5::numeric,
		       updated_at = now()
		 WHERE contract_address = $1
	`
	_, err := r.db.ExecContext(ctx, query, contractAddress, price, supply, marketCap, volumeDelta)
	return err
}

func (r *bondingCurveRepository) MarkGraduated(ctx context.Context, contractAddress, poolAddress string) (bool, error) {
	query := `
		UPDATE bonding_curves
		   SET graduated = TRUE,
		       pool_address = $2,
		       updated_at = now()
		 WHERE contract_address = $1
		   AND graduated = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, contractAddress, poolAddress)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *bondingCurveRepository) InsertEarning(ctx context.Context, earning models.CreatorEarning) error {
	query := `
		INSERT INTO creator_earnings (creator_id, dataset_id, contract_address, transaction_hash, amount)
		VALUES ($1, $2, $3, $4, $5::numeric)
	`
	_, err := r.db.ExecContext(ctx, query,
		earning.CreatorID,
		earning.DatasetID,
		earning.ContractAddress,
		earning.TransactionHash,
		earning.Amount,
	)
	return err
}
