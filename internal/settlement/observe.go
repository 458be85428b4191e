package settlement

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/checkout-lane/internal/events"
	"github.com/noah-isme/checkout-lane/internal/obs"
	"github.com/noah-isme/checkout-lane/internal/register"
)

func recordAdjustment(reason string) {
	if obs.InventoryAdjustmentsTotal == nil {
		return
	}
	obs.InventoryAdjustmentsTotal.WithLabelValues(reason).Inc()
}

func (e *Engine) record(ctx context.Context, reg *register.Register, res Result) {
	if e.issued != nil {
		e.issued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("lane", res.LaneID),
			attribute.String("outcome", res.Outcome.String()),
		))
	}
	if obs.SettlementsTotal != nil {
		obs.SettlementsTotal.WithLabelValues(res.LaneID, res.Outcome.String()).Inc()
	}
	if obs.ChargedAmount != nil {
		obs.ChargedAmount.WithLabelValues(res.LaneID).Observe(res.Charged.InexactFloat64())
	}
	if res.ChangeShortfall.IsPositive() && obs.ChangeShortfallTotal != nil {
		obs.ChangeShortfallTotal.WithLabelValues(reg.ID).Inc()
	}
}

type settledPayload struct {
	LaneID          string `json:"laneId"`
	ReceiptID       string `json:"receiptId"`
	Customer        string `json:"customer"`
	Outcome         string `json:"outcome"`
	Total           string `json:"total"`
	Charged         string `json:"charged"`
	ChangeGiven     string `json:"changeGiven"`
	ChangeShortfall string `json:"changeShortfall"`
	Balance         string `json:"balance"`
}

// publish raises checkout.settled for every customer plus a topic for the
// underfunded outcomes.
func (e *Engine) publish(ctx context.Context, res Result) error {
	if e.bus == nil {
		return nil
	}
	payload := settledPayload{
		LaneID:          res.LaneID,
		ReceiptID:       res.Receipt.ID().String(),
		Customer:        res.Customer.Label(),
		Outcome:         res.Outcome.String(),
		Total:           res.Total.String(),
		Charged:         res.Charged.String(),
		ChangeGiven:     res.ChangeGiven.String(),
		ChangeShortfall: res.ChangeShortfall.String(),
		Balance:         res.Balance.String(),
	}
	id := res.Customer.ID.String()
	if _, err := e.bus.Emit(ctx, events.TopicCheckoutSettled, id, payload); err != nil {
		return err
	}
	switch res.Outcome {
	case TruncatedPartial:
		_, err := e.bus.Emit(ctx, events.TopicCheckoutTruncated, id, payload)
		return err
	case SettledWithBalance:
		_, err := e.bus.Emit(ctx, events.TopicCheckoutBalanceOwed, id, payload)
		return err
	}
	return nil
}
