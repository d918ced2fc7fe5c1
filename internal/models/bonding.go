package models

import "time"

type TradeType string

const (
	TradeTypeBuy       TradeType = "buy"
	TradeTypeSell      TradeType = "sell"
	TradeTypeGraduated TradeType = "graduated"
)

// BondingCurve mirrors the on-chain price-discovery contract for a dataset
// token. Numeric fields are stored as strings because uint256 values exceed
// int64; Postgres holds them as NUMERIC.
type BondingCurve struct {
	ID              string    `json:"id" db:"id"`
	DatasetID       string    `json:"dataset_id" db:"dataset_id"`
	CreatorID       string    `json:"creator_id" db:"creator_id"`
	ContractAddress string    `json:"contract_address" db:"contract_address"`
	CurrentPrice    string    `json:"current_price" db:"current_price"`
	TotalSupply     string    `json:"total_supply" db:"total_supply"`
	MarketCap       string    `json:"market_cap" db:"market_cap"`
	TotalVolume     string    `json:"total_volume" db:"total_volume"`
	Graduated       bool      `json:"graduated" db:"graduated"`
	PoolAddress     *string   `json:"pool_address,omitempty" db:"pool_address"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// BondingCurveTrade is one persisted on-chain trade event. The
// (ContractAddress, TransactionHash) pair is the idempotency key.
type BondingCurveTrade struct {
	ID              string    `json:"id" db:"id"`
	ContractAddress string    `json:"contract_address" db:"contract_address"`
	TransactionHash string    `json:"transaction_hash" db:"transaction_hash"`
	Type            TradeType `json:"type" db:"trade_type"`
	TraderAddress   string    `json:"trader_address" db:"trader_address"`
	Amount          string    `json:"amount" db:"amount"`
	Price           string    `json:"price" db:"price"`
	Fee             string    `json:"fee" db:"fee"`
	BlockNumber     uint64    `json:"block_number" db:"block_number"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// CreatorEarning records the creator fee accrued on a purchase.
type CreatorEarning struct {
	ID              string    `json:"id" db:"id"`
	CreatorID       string    `json:"creator_id" db:"creator_id"`
	DatasetID       string    `json:"dataset_id" db:"dataset_id"`
	ContractAddress string    `json:"contract_address" db:"contract_address"`
	TransactionHash string    `json:"transaction_hash" db:"transaction_hash"`
	Amount          string    `json:"amount" db:"amount"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
