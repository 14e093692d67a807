package obs

import (
	"context"

	"amanat.org/internal/escrow"
)

// EscrowMetrics feeds the value counters from committed escrow events.
type EscrowMetrics struct{}

var _ escrow.EventSink = EscrowMetrics{}

func (EscrowMetrics) Emit(_ context.Context, evt escrow.Event) {
	switch evt.Type {
	case escrow.EventNewDonation:
		AddValue("contribution", evt.Amount)
	case escrow.EventWithdrawedDonation:
		AddValue("refund", evt.Amount)
	case escrow.EventWithdrawedFunds:
		AddValue("payout", evt.Amount)
	}
}

// Outcome labels an operation result for ObserveOp.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return escrow.ClassOf(err).String()
}
