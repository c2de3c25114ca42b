package execution

import (
	"strings"

	"github.com/shopspring/decimal"

	"signalmirror/src/model"
)

// MarketKind selects the sub-workflow of a run.
type MarketKind string

const (
	MarketFutures MarketKind = model.MarketTypeFutures
	MarketSpot    MarketKind = model.MarketTypeSpot
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const DefaultLeverage = 1

var (
	DefaultRatio = decimal.RequireFromString("0.1")
	// MinNotional rejects any entry whose quantity*price falls below it.
	MinNotional = decimal.NewFromInt(5)
	// MinTargetValue is the position value an entry is raised to when the
	// ratio yields less but the account can afford it.
	MinTargetValue = decimal.NewFromInt(6)
)

const (
	entryQtyPlaces    = 3
	spotExitQtyPlaces = 4
)

// Input is the validated view of a signal for one account. It is built once
// at the start of a run; nothing downstream reads the raw signal.
type Input struct {
	SignalID   uint
	StrategyID uint
	AccountID  uint
	Symbol     string

	Market       MarketKind
	Keyword      string
	Type         string // entry | exit
	Side         string // long | short
	ExchangeSide string // BUY | SELL

	MasterQty decimal.Decimal
	Ratio     decimal.Decimal
	Leverage  int
	Price     decimal.Decimal

	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
}

// NewInput classifies signal and applies the defaulting rules.
func NewInput(signal *model.Signal, accountID uint, symbol string) Input {
	in := Input{
		SignalID:   signal.ID,
		StrategyID: signal.StrategyID,
		AccountID:  accountID,
		Symbol:     symbol,
		Keyword:    NormalizeKeyword(signal.Direction),
		StopLoss:   signal.TargetSL,
		TakeProfit: signal.TargetTP,
	}

	// signals without a market type trade the strategy's market
	marketType := signal.MarketType
	if strings.TrimSpace(marketType) == "" && signal.Strategy != nil {
		marketType = signal.Strategy.MarketType
	}
	in.Market = marketOf(marketType)
	in.Type = model.ExecutionTypeExit
	if strings.Contains(in.Keyword, "entry") {
		in.Type = model.ExecutionTypeEntry
	}

	in.Side = model.SideLong
	if in.Market == MarketFutures && !strings.Contains(in.Keyword, "long") {
		in.Side = model.SideShort
	}
	in.ExchangeSide = exchangeSide(in.Market, in.Type, in.Side)

	if signal.Quantity.Valid {
		in.MasterQty = signal.Quantity.Decimal
	}

	in.Ratio = DefaultRatio
	if signal.Ratio.Valid && signal.Ratio.Decimal.IsPositive() {
		in.Ratio = signal.Ratio.Decimal
	}

	in.Leverage = DefaultLeverage
	if signal.Leverage != nil && *signal.Leverage > 0 {
		in.Leverage = *signal.Leverage
	}
	if in.Market == MarketSpot {
		in.Leverage = 1
	}

	switch {
	case signal.PriceEntry.Valid && signal.PriceEntry.Decimal.IsPositive():
		in.Price = signal.PriceEntry.Decimal
	case signal.PriceExit.Valid && signal.PriceExit.Decimal.IsPositive():
		in.Price = signal.PriceExit.Decimal
	default:
		in.Price = decimal.NewFromInt(1)
	}

	return in
}

// NormalizeKeyword maps "Entry-Long" to "entry_long".
func NormalizeKeyword(direction string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(direction), "-", "_"))
}

func marketOf(marketType string) MarketKind {
	switch strings.ToLower(strings.TrimSpace(marketType)) {
	case "", model.MarketTypeFutures:
		return MarketFutures
	default:
		return MarketSpot
	}
}

func exchangeSide(market MarketKind, executionType, side string) string {
	entry := executionType == model.ExecutionTypeEntry
	if market == MarketSpot {
		if entry {
			return SideBuy
		}
		return SideSell
	}

	long := side == model.SideLong
	if entry == long {
		return SideBuy
	}
	return SideSell
}

func oppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// IsFutures reports whether the run trades futures.
func (in Input) IsFutures() bool {
	return in.Market == MarketFutures
}
