package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"signalmirror/src/connectors"
	"signalmirror/src/model"
)

// run carries what a workflow needs besides the gateway.
type run struct {
	in     Input
	open   *model.Position // active position of (account, symbol), if any
	pricer connectors.ReferencePricer
	log    *logrus.Entry
}

type workflow interface {
	Execute(ctx context.Context, r *run, gw connectors.Gateway) Outcome
}

func workflowFor(market MarketKind) workflow {
	if market == MarketSpot {
		return spotWorkflow{}
	}
	return futuresWorkflow{}
}

type futuresWorkflow struct{}

func (futuresWorkflow) Execute(ctx context.Context, r *run, gw connectors.Gateway) Outcome {
	in := r.in
	if in.Type == model.ExecutionTypeExit {
		// best effort: leftover stops must not fire after the close
		resp, err := gw.CancelAllSymbolOrders(ctx, in.Symbol, true)
		if err == nil {
			err = resp.Err()
		}
		if err != nil {
			r.log.WithError(err).Warn("Failed to cancel open orders before exit")
		}

		qty := exitQuantity(r)
		if !qty.IsPositive() {
			return fail("no active balance/position to exit")
		}
		return closeOrder(ctx, r, gw, qty)
	}

	resp, err := gw.SetLeverage(ctx, in.Symbol, in.Leverage)
	if err != nil {
		return fail(fmt.Sprintf("set leverage: %v", err))
	}
	if err := resp.Err(); err != nil {
		return fail(fmt.Sprintf("set leverage: %v", err))
	}

	balance, err := gw.Balance(ctx)
	if err == nil {
		err = balance.FuturesErr
	}
	if err != nil {
		return fail(fmt.Sprintf("fetch balance: %v", err))
	}

	qty, reason := entryQuantity(balance.Available, in)
	if reason != "" {
		return fail(reason)
	}

	order, err := gw.PlaceMarketOrder(ctx, in.Symbol, in.ExchangeSide, qty, true)
	if err != nil {
		return fail(fmt.Sprintf("place entry order: %v", err))
	}
	if err := order.Err(); err != nil {
		return fail(err.Error())
	}

	filled := filledQuantity(order, qty)
	return Success{
		Quantity:   filled,
		Price:      order.FillPrice(in.Price),
		Protection: protect(ctx, r, gw, filled),
	}
}

type spotWorkflow struct{}

func (spotWorkflow) Execute(ctx context.Context, r *run, gw connectors.Gateway) Outcome {
	in := r.in
	if in.Type == model.ExecutionTypeExit {
		qty := exitQuantity(r)

		// fees leave less of the base asset than the recorded position
		held, err := gw.AssetBalance(ctx, connectors.BaseAsset(in.Symbol))
		if err != nil {
			return fail(fmt.Sprintf("fetch asset balance: %v", err))
		}
		if held.LessThan(qty) {
			qty = held
		}
		qty = qty.RoundFloor(spotExitQtyPlaces)
		if !qty.IsPositive() {
			return fail("no active balance/position to exit")
		}
		return closeOrder(ctx, r, gw, qty)
	}

	balance, err := gw.Balance(ctx)
	if err == nil {
		err = balance.SpotErr
	}
	if err != nil {
		return fail(fmt.Sprintf("fetch balance: %v", err))
	}

	qty, reason := entryQuantity(balance.Spot, in)
	if reason != "" {
		return fail(reason)
	}

	order, err := gw.PlaceMarketOrder(ctx, in.Symbol, in.ExchangeSide, qty, false)
	if err != nil {
		return fail(fmt.Sprintf("place entry order: %v", err))
	}
	if err := order.Err(); err != nil {
		return fail(err.Error())
	}

	return Success{
		Quantity:   filledQuantity(order, qty),
		Price:      order.FillPrice(in.Price),
		Protection: Protection{Status: model.ProtectionNone},
	}
}

// entryQuantity sizes an entry from the account balance. A non-empty reason
// rejects the entry.
func entryQuantity(balance decimal.Decimal, in Input) (decimal.Decimal, string) {
	lev := decimal.NewFromInt(int64(in.Leverage))

	target := balance.Mul(in.Ratio).Mul(lev)
	if target.LessThan(MinTargetValue) && balance.Mul(lev).GreaterThanOrEqual(MinTargetValue) {
		target = MinTargetValue
	}

	qty := target.Div(in.Price).RoundFloor(entryQtyPlaces)
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Sprintf("insufficient balance: quantity %s for balance %s", qty, balance)
	}
	if notional := qty.Mul(in.Price); notional.LessThan(MinNotional) {
		return decimal.Zero, fmt.Sprintf("order notional %s below minimum %s", notional, MinNotional)
	}
	return qty, ""
}

func exitQuantity(r *run) decimal.Decimal {
	if r.open != nil && r.open.Quantity.IsPositive() {
		return r.open.Quantity
	}
	return r.in.MasterQty
}

func closeOrder(ctx context.Context, r *run, gw connectors.Gateway, qty decimal.Decimal) Outcome {
	in := r.in
	order, err := gw.ClosePosition(ctx, in.Symbol, in.ExchangeSide, qty, in.IsFutures())
	if err != nil {
		return fail(fmt.Sprintf("close position: %v", err))
	}
	if err := order.Err(); err != nil {
		return fail(err.Error())
	}
	return Success{
		Quantity:   filledQuantity(order, qty),
		Price:      order.FillPrice(in.Price),
		Protection: Protection{Status: model.ProtectionNone},
	}
}

func filledQuantity(order *connectors.OrderResponse, requested decimal.Decimal) decimal.Decimal {
	if order != nil && order.ExecutedQty.IsPositive() {
		return order.ExecutedQty
	}
	return requested
}

// protect places the stop-loss and take-profit orders of a filled futures
// entry. Each order stands alone; failures are collected, never returned.
func protect(ctx context.Context, r *run, gw connectors.Gateway, qty decimal.Decimal) Protection {
	in := r.in
	side := oppositeSide(in.ExchangeSide)

	var ref decimal.Decimal
	if r.pricer != nil && (in.StopLoss.Valid || in.TakeProfit.Valid) {
		price, err := r.pricer.Price(ctx, in.Symbol)
		if err != nil {
			r.log.WithError(err).Warn("Reference price unavailable, protective prices not checked")
		} else {
			ref = price
		}
	}

	var (
		attempted, placed int
		errs              []string
	)

	place := func(kind string, target decimal.NullDecimal, send func() (*connectors.OrderResponse, error)) {
		if !target.Valid || !target.Decimal.IsPositive() {
			return
		}
		attempted++

		if ref.IsPositive() {
			if reason := checkProtectivePrice(kind, in.ExchangeSide, target.Decimal, ref); reason != "" {
				errs = append(errs, reason)
				return
			}
		}

		resp, err := send()
		if err == nil {
			err = resp.Err()
		}
		if err != nil {
			r.log.WithError(err).WithField("order", kind).Error("Protective order failed")
			errs = append(errs, fmt.Sprintf("%s: %v", kind, err))
			return
		}
		placed++
	}

	place("stop_loss", in.StopLoss, func() (*connectors.OrderResponse, error) {
		return gw.PlaceStopMarketOrder(ctx, in.Symbol, side, in.StopLoss.Decimal, qty)
	})
	place("take_profit", in.TakeProfit, func() (*connectors.OrderResponse, error) {
		return gw.PlaceTakeProfitMarketOrder(ctx, in.Symbol, side, in.TakeProfit.Decimal, qty)
	})

	return Protection{Status: protectionStatus(attempted, placed), Errors: errs}
}

// checkProtectivePrice rejects a stop or target on the wrong side of the
// reference price for an entry placed with entrySide.
func checkProtectivePrice(kind, entrySide string, price, ref decimal.Decimal) string {
	buy := entrySide == SideBuy
	switch kind {
	case "stop_loss":
		if buy && price.GreaterThanOrEqual(ref) || !buy && price.LessThanOrEqual(ref) {
			return fmt.Sprintf("stop_loss %s on the wrong side of reference price %s", price, ref)
		}
	case "take_profit":
		if buy && price.LessThanOrEqual(ref) || !buy && price.GreaterThanOrEqual(ref) {
			return fmt.Sprintf("take_profit %s on the wrong side of reference price %s", price, ref)
		}
	}
	return ""
}
