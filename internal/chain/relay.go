package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/models"
	"github.com/synthara/forge-api/internal/realtime"
	"github.com/synthara/forge-api/internal/repository"
)

// BondingNotifier receives mirrored chain events for realtime fan-out.
// Notification failures are advisory only; the database write has already
// happened when it is called.
type BondingNotifier interface {
	EmitBondingEvent(datasetID string, event realtime.BondingEvent)
}

// Relay subscribes to bonding-curve contract logs and mirrors trades,
// curve-state snapshots, creator earnings and graduations into Postgres.
// A periodic rescan backfills logs missed while the subscription was down.
type Relay struct {
	client         EthClient
	curves         repository.BondingCurveRepository
	notifier       BondingNotifier
	logger         zerolog.Logger
	rescanInterval time.Duration

	curveABI abi.ABI
	topics   map[common.Hash]string

	mu        sync.RWMutex
	watched   map[common.Address]models.BondingCurve
	unwatched map[common.Address]struct{}
	lastBlock uint64
}

// errResubscribe restarts the log subscription so a changed watched set is
// reflected in the live filter, not just the rescan queries.
var errResubscribe = errors.New("watched curve set changed")

func NewRelay(
	client EthClient,
	curves repository.BondingCurveRepository,
	notifier BondingNotifier,
	rescanInterval time.Duration,
	logger zerolog.Logger,
) (*Relay, error) {
	curveABI, err := parseCurveABI()
	if err != nil {
		return nil, err
	}

	topics := map[common.Hash]string{
		curveABI.Events[eventTokensPurchased].ID: eventTokensPurchased,
		curveABI.Events[eventTokensSold].ID:      eventTokensSold,
		curveABI.Events[eventCurveGraduated].ID:  eventCurveGraduated,
	}

	return &Relay{
		client:         client,
		curves:         curves,
		notifier:       notifier,
		logger:         logger.With().Str("component", "chain-relay").Logger(),
		rescanInterval: rescanInterval,
		curveABI:       curveABI,
		topics:         topics,
		watched:        make(map[common.Address]models.BondingCurve),
		unwatched:      make(map[common.Address]struct{}),
	}, nil
}

// Run blocks until ctx is cancelled, resubscribing whenever the log
// subscription drops.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.loadWatched(ctx); err != nil {
		return err
	}
	r.logger.Info().Int("curves", len(r.addresses())).Msg("Chain relay started")

	for {
		err := r.subscribeLoop(ctx)
		if err == errResubscribe {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("Log subscription lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

// WatchCurve registers a newly deployed contract without a restart.
func (r *Relay) WatchCurve(curve models.BondingCurve) {
	addr := common.HexToAddress(curve.ContractAddress)
	r.mu.Lock()
	r.watched[addr] = curve
	delete(r.unwatched, addr)
	r.mu.Unlock()
	r.logger.Info().Str("contract", curve.ContractAddress).Msg("Watching bonding curve")
}

// UnwatchCurve drops a contract from the tracked set. Its logs are ignored,
// it is excluded from subsequent filter queries, and the periodic refresh
// will not re-add it unless WatchCurve is called again.
func (r *Relay) UnwatchCurve(contractAddress string) {
	addr := common.HexToAddress(contractAddress)
	r.mu.Lock()
	delete(r.watched, addr)
	r.unwatched[addr] = struct{}{}
	r.mu.Unlock()
	r.logger.Info().Str("contract", contractAddress).Msg("Stopped watching bonding curve")
}

func (r *Relay) loadWatched(ctx context.Context) error {
	curves, err := r.curves.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load bonding curves")
	}
	r.mu.Lock()
	for _, curve := range curves {
		r.watched[common.HexToAddress(curve.ContractAddress)] = curve
	}
	r.mu.Unlock()
	return nil
}

// refreshWatched re-queries active curves so contracts deployed after startup
// get tracked without a restart. Reports whether any new address was added.
func (r *Relay) refreshWatched(ctx context.Context) bool {
	curves, err := r.curves.ListActive(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Curve refresh failed")
		return false
	}

	added := false
	r.mu.Lock()
	for _, curve := range curves {
		addr := common.HexToAddress(curve.ContractAddress)
		if _, dropped := r.unwatched[addr]; dropped {
			continue
		}
		if _, ok := r.watched[addr]; !ok {
			r.watched[addr] = curve
			added = true
			r.logger.Info().Str("contract", curve.ContractAddress).Msg("Watching bonding curve")
		}
	}
	r.mu.Unlock()
	return added
}

func (r *Relay) addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]common.Address, 0, len(r.watched))
	for addr := range r.watched {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (r *Relay) subscribeLoop(ctx context.Context) error {
	logs := make(chan types.Log, 64)
	sub, err := r.client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{Addresses: r.addresses()}, logs)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to contract logs")
	}
	defer sub.Unsubscribe()

	ticker := time.NewTicker(r.rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case entry := <-logs:
			r.handleLog(ctx, entry)
		case <-ticker.C:
			if r.rescan(ctx) {
				return errResubscribe
			}
		}
	}
}

// rescan picks up curves deployed since the last tick, then backfills logs
// from the last seen block. Already-mirrored trades are filtered out by the
// (contract, tx hash) idempotency key. Reports whether the watched set grew,
// in which case the caller must resubscribe.
func (r *Relay) rescan(ctx context.Context) bool {
	added := r.refreshWatched(ctx)

	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Rescan skipped: head block unavailable")
		return added
	}

	r.mu.RLock()
	from := r.lastBlock
	r.mu.RUnlock()
	if from >= head {
		return added
	}

	entries, err := r.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: r.addresses(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Uint64("from", from).Uint64("to", head).Msg("Rescan query failed")
		return added
	}
	for _, entry := range entries {
		r.handleLog(ctx, entry)
	}

	r.mu.Lock()
	if head > r.lastBlock {
		r.lastBlock = head
	}
	r.mu.Unlock()
	return added
}

func (r *Relay) handleLog(ctx context.Context, entry types.Log) {
	if entry.Removed || len(entry.Topics) == 0 {
		return
	}

	r.mu.RLock()
	curve, watched := r.watched[entry.Address]
	r.mu.RUnlock()
	if !watched {
		return
	}

	name, known := r.topics[entry.Topics[0]]
	if !known {
		return
	}

	r.mu.Lock()
	if entry.BlockNumber > r.lastBlock {
		r.lastBlock = entry.BlockNumber
	}
	r.mu.Unlock()

	var err error
	switch name {
	case eventTokensPurchased:
		err = r.handleTrade(ctx, curve, entry, models.TradeTypeBuy)
	case eventTokensSold:
		err = r.handleTrade(ctx, curve, entry, models.TradeTypeSell)
	case eventCurveGraduated:
		err = r.handleGraduation(ctx, curve, entry)
	}
	if err != nil {
		r.logger.Error().Err(err).
			Str("contract", curve.ContractAddress).
			Str("event", name).
			Str("tx", entry.TxHash.Hex()).
			Msg("Failed to mirror chain event")
	}
}

func (r *Relay) handleTrade(ctx context.Context, curve models.BondingCurve, entry types.Log, tradeType models.TradeType) error {
	name := eventTokensPurchased
	if tradeType == models.TradeTypeSell {
		name = eventTokensSold
	}

	values, err := r.curveABI.Unpack(name, entry.Data)
	if err != nil {
		return errors.Wrapf(err, "failed to decode %s log", name)
	}
	amount, price := values[0].(*big.Int), values[1].(*big.Int)
	fee := big.NewInt(0)
	if tradeType == models.TradeTypeBuy {
		fee = values[2].(*big.Int)
	}

	trader := common.HexToAddress(entry.Topics[1].Hex())
	trade := models.BondingCurveTrade{
		ContractAddress: curve.ContractAddress,
		TransactionHash: entry.TxHash.Hex(),
		Type:            tradeType,
		TraderAddress:   trader.Hex(),
		Amount:          amount.String(),
		Price:           price.String(),
		Fee:             fee.String(),
		BlockNumber:     entry.BlockNumber,
	}

	inserted, err := r.curves.InsertTrade(ctx, trade)
	if err != nil {
		return errors.Wrap(err, "failed to insert trade")
	}
	if !inserted {
		r.logger.Debug().Str("tx", trade.TransactionHash).Msg("Trade already mirrored, skipping")
		return nil
	}

	if err := r.refreshCurveState(ctx, curve, price.String()); err != nil {
		return err
	}

	if tradeType == models.TradeTypeBuy && fee.Sign() > 0 {
		earning := models.CreatorEarning{
			CreatorID:       curve.CreatorID,
			DatasetID:       curve.DatasetID,
			ContractAddress: curve.ContractAddress,
			TransactionHash: trade.TransactionHash,
			Amount:          fee.String(),
		}
		if err := r.curves.InsertEarning(ctx, earning); err != nil {
			return errors.Wrap(err, "failed to record creator earning")
		}
	}

	r.notifier.EmitBondingEvent(curve.DatasetID, realtime.BondingEvent{Type: tradeType, Data: trade})
	return nil
}

func (r *Relay) handleGraduation(ctx context.Context, curve models.BondingCurve, entry types.Log) error {
	values, err := r.curveABI.Unpack(eventCurveGraduated, entry.Data)
	if err != nil {
		return errors.Wrap(err, "failed to decode CurveGraduated log")
	}
	pool := values[0].(common.Address)

	flipped, err := r.curves.MarkGraduated(ctx, curve.ContractAddress, pool.Hex())
	if err != nil {
		return errors.Wrap(err, "failed to mark curve graduated")
	}
	if !flipped {
		r.logger.Debug().Str("contract", curve.ContractAddress).Msg("Curve already graduated, skipping")
		return nil
	}

	r.notifier.EmitBondingEvent(curve.DatasetID, realtime.BondingEvent{
		Type: models.TradeTypeGraduated,
		Data: map[string]string{
			"contractAddress": curve.ContractAddress,
			"poolAddress":     pool.Hex(),
		},
	})

	// Trading moves to the DEX pool after graduation; the curve contract
	// emits nothing further worth mirroring.
	r.UnwatchCurve(curve.ContractAddress)
	return nil
}

// refreshCurveState re-queries the contract's view functions so the stored
// snapshot reflects post-trade state rather than decoded log fields.
func (r *Relay) refreshCurveState(ctx context.Context, curve models.BondingCurve, volumeDelta string) error {
	price, err := r.callUint(ctx, curve, "getCurrentPrice")
	if err != nil {
		return err
	}
	supply, err := r.callUint(ctx, curve, "totalSupply")
	if err != nil {
		return err
	}
	marketCap, err := r.callUint(ctx, curve, "getMarketCap")
	if err != nil {
		return err
	}

	err = r.curves.UpdateCurveState(ctx, curve.ContractAddress, price.String(), supply.String(), marketCap.String(), volumeDelta)
	return errors.Wrap(err, "failed to update curve state")
}

func (r *Relay) callUint(ctx context.Context, curve models.BondingCurve, method string) (*big.Int, error) {
	input, err := r.curveABI.Pack(method)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call", method)
	}
	addr := common.HexToAddress(curve.ContractAddress)
	output, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s call failed", method)
	}
	values, err := r.curveABI.Unpack(method, output)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s result", method)
	}
	return values[0].(*big.Int), nil
}
