package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/models"
	"regime-trader/internal/risk"
)

// Paper account defaults.
const (
	DefaultInitialBalance = 1_000_000
	DefaultFeeRate        = 0.0005
)

// PaperBroker implements the Gateway interface as an in-memory cash ledger.
// Fees are charged on both legs at FeeRate and fills happen at the
// requested price.
type PaperBroker struct {
	feeRate float64
	initial float64

	cash      float64
	positions []*models.Position
	trades    []models.Trade
	totalFees float64

	mu sync.RWMutex
}

// PaperBrokerConfig holds configuration for paper broker.
type PaperBrokerConfig struct {
	InitialBalance float64
	FeeRate        float64
}

// NewPaperBroker creates a new paper trading account.
func NewPaperBroker(cfg PaperBrokerConfig) *PaperBroker {
	initial := cfg.InitialBalance
	if initial == 0 {
		initial = DefaultInitialBalance
	}
	return &PaperBroker{
		feeRate: cfg.FeeRate,
		initial: initial,
		cash:    initial,
	}
}

// FeeRate returns the per-leg fee rate.
func (p *PaperBroker) FeeRate() float64 {
	return p.feeRate
}

// Buy opens a position at req.Price. The plan quantity plus the entry fee
// must be covered by available cash.
func (p *PaperBroker) Buy(ctx context.Context, req BuyRequest) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qty := req.Plan.Quantity
	if !(qty > 0) || !(req.Price > 0) {
		return nil, apperrors.NewOrderError("", req.Ticker, "BUY",
			fmt.Sprintf("quantity %.6f at price %.2f", qty, req.Price), apperrors.ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := qty * req.Price
	fee := risk.Fee(cost, p.feeRate)
	if cost+fee > p.cash {
		return nil, apperrors.NewOrderError("", req.Ticker, "BUY",
			fmt.Sprintf("need %.2f, have %.2f", cost+fee, p.cash), apperrors.ErrInsufficientFunds)
	}

	p.cash -= cost + fee
	p.totalFees += fee

	pos := &models.Position{
		ID:         uuid.NewString(),
		Ticker:     req.Ticker,
		Quantity:   qty,
		EntryPrice: req.Price,
		TakeProfit: req.Plan.TakeProfit,
		StopLoss:   req.Plan.StopLoss,
		EntryTime:  req.Time,
		EntryFee:   fee,
		Note:       req.Plan.Note,
	}
	p.positions = append(p.positions, pos)
	p.trades = append(p.trades, models.Trade{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Time:       req.Time,
		Type:       models.TradeBuy,
		Price:      req.Price,
		Quantity:   qty,
		Fee:        fee,
		Note:       req.Plan.Note,
	})

	out := *pos
	return &out, nil
}

// Sell closes req.Quantity of a position at req.Price. Realized PnL is net
// of the exit fee and the matching share of the entry fee.
func (p *PaperBroker) Sell(ctx context.Context, req SellRequest) (*models.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !(req.Price > 0) {
		return nil, apperrors.NewOrderError(req.PositionID, "", "SELL",
			fmt.Sprintf("price %.2f", req.Price), apperrors.ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(req.PositionID)
	if i < 0 {
		return nil, apperrors.NewOrderError(req.PositionID, "", "SELL", "no such position", apperrors.ErrPositionNotFound)
	}
	pos := p.positions[i]

	qty := req.Quantity
	full := !(qty > 0) || qty >= pos.Quantity
	if full {
		qty = pos.Quantity
	}

	entryFee := pos.EntryFee
	if !full {
		entryFee = pos.EntryFee * qty / pos.Quantity
	}

	revenue := qty * req.Price
	fee := risk.Fee(revenue, p.feeRate)
	net := revenue - fee
	cost := qty * pos.EntryPrice
	pnl := net - (cost + entryFee)

	p.cash += net
	p.totalFees += fee

	note := req.Note
	if note == "" {
		note = pos.Note
	}
	trade := models.Trade{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Time:       req.Time,
		Type:       req.Type,
		Price:      req.Price,
		Quantity:   qty,
		Fee:        fee,
		PnL:        pnl,
		PnLPercent: pnl / cost * 100,
		Note:       note,
	}
	p.trades = append(p.trades, trade)

	if full {
		p.positions = append(p.positions[:i], p.positions[i+1:]...)
	} else {
		pos.Quantity -= qty
		pos.EntryFee -= entryFee
	}
	return &trade, nil
}

// RaiseStopLoss moves a position's stop-loss up. Lower levels are ignored.
func (p *PaperBroker) RaiseStopLoss(ctx context.Context, positionID string, stopLoss float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(positionID)
	if i < 0 {
		return apperrors.NewOrderError(positionID, "", "ADJUST_SL", "no such position", apperrors.ErrPositionNotFound)
	}
	if stopLoss > p.positions[i].StopLoss {
		p.positions[i].StopLoss = stopLoss
	}
	return nil
}

// MarkProfitStage records the staged profit-taking level acted on for a
// position.
func (p *PaperBroker) MarkProfitStage(positionID string, stage int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := p.indexOf(positionID); i >= 0 && stage > p.positions[i].ProfitStage {
		p.positions[i].ProfitStage = stage
	}
}

// Cash returns available cash.
func (p *PaperBroker) Cash(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash, nil
}

// Positions returns copies of the open positions, oldest first.
func (p *PaperBroker) Positions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Position, len(p.positions))
	for i, pos := range p.positions {
		out[i] = *pos
	}
	return out, nil
}

// Equity returns cash plus every open position valued at price.
func (p *PaperBroker) Equity(ctx context.Context, price float64) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.cash
	for _, pos := range p.positions {
		total += pos.Value(price)
	}
	return total, nil
}

// Trades returns every recorded fill, oldest first.
func (p *PaperBroker) Trades() []models.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// TotalFees returns the fees charged on both legs so far.
func (p *PaperBroker) TotalFees() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalFees
}

// InitialBalance returns the starting cash.
func (p *PaperBroker) InitialBalance() float64 {
	return p.initial
}

// Reset restores the account to its initial state.
func (p *PaperBroker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cash = p.initial
	p.positions = nil
	p.trades = nil
	p.totalFees = 0
}

func (p *PaperBroker) indexOf(id string) int {
	for i, pos := range p.positions {
		if pos.ID == id {
			return i
		}
	}
	return -1
}

// Ensure PaperBroker implements Gateway interface
var _ Gateway = (*PaperBroker)(nil)
