package escrow

import (
	"context"
	"fmt"
	"math"
)

// ledger tracks donor balances, campaign aggregates and escrow custody.
// Methods update the passed campaign in place; the caller persists it.
type ledger struct {
	tx Tx
}

func addChecked(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// recordContribution credits amount to the donor and the campaign and moves
// it into custody. It returns the campaign's new total.
func (l ledger) recordContribution(ctx context.Context, c *Campaign, donor Identity, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrZeroAmount
	}
	d, err := l.donation(ctx, *c, donor)
	if err != nil {
		return 0, err
	}
	if d.Amount, err = addChecked(d.Amount, amount); err != nil {
		return 0, err
	}
	raised, err := addChecked(c.TotalRaised, amount)
	if err != nil {
		return 0, err
	}
	held, err := l.tx.Held(ctx)
	if err != nil {
		return 0, fmt.Errorf("load custody: %w", err)
	}
	if held, err = addChecked(held, amount); err != nil {
		return 0, err
	}

	if err := l.tx.PutDonation(ctx, d); err != nil {
		return 0, fmt.Errorf("store donation: %w", err)
	}
	if err := l.tx.SetHeld(ctx, held); err != nil {
		return 0, fmt.Errorf("store custody: %w", err)
	}
	c.TotalRaised = raised
	return raised, nil
}

// outstanding is the donor's refundable amount in the current epoch.
func (l ledger) outstanding(ctx context.Context, c Campaign, donor Identity) (int64, error) {
	d, err := l.donation(ctx, c, donor)
	if err != nil {
		return 0, err
	}
	return d.Amount, nil
}

// clearDonor zeroes the donor's balance and returns what it was.
func (l ledger) clearDonor(ctx context.Context, c *Campaign, donor Identity) (int64, error) {
	d, err := l.donation(ctx, *c, donor)
	if err != nil {
		return 0, err
	}
	if d.Amount <= 0 {
		return 0, ErrNoDonationsMade
	}
	prev := d.Amount
	d.Amount = 0
	if err := l.tx.PutDonation(ctx, d); err != nil {
		return 0, fmt.Errorf("store donation: %w", err)
	}
	c.TotalRaised -= prev
	c.TotalRefunded += prev
	return prev, nil
}

// clearAllForCampaign releases the whole pool at once. Bumping the epoch
// zeroes every donor record of the campaign without touching them.
func (l ledger) clearAllForCampaign(c *Campaign) (int64, error) {
	pool := c.Pool()
	if pool <= 0 {
		return 0, ErrNoDonationsMade
	}
	c.TotalWithdrawn += pool
	c.Epoch++
	return pool, nil
}

// pay moves amount out of custody into the recipient's payout account.
func (l ledger) pay(ctx context.Context, to Identity, amount int64) error {
	held, err := l.tx.Held(ctx)
	if err != nil {
		return fmt.Errorf("load custody: %w", err)
	}
	if held < amount {
		return ErrInsufficientEscrow
	}
	bal, err := l.tx.Balance(ctx, to)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	if bal, err = addChecked(bal, amount); err != nil {
		return err
	}
	if err := l.tx.SetHeld(ctx, held-amount); err != nil {
		return fmt.Errorf("store custody: %w", err)
	}
	if err := l.tx.SetBalance(ctx, to, bal); err != nil {
		return fmt.Errorf("settle payout to %s: %w", to, err)
	}
	return nil
}

// donation loads the donor record normalized to the campaign's epoch.
func (l ledger) donation(ctx context.Context, c Campaign, donor Identity) (Donation, error) {
	d, err := l.tx.Donation(ctx, c.ID, donor)
	if err != nil {
		return Donation{}, fmt.Errorf("load donation: %w", err)
	}
	d.CampaignID = c.ID
	d.Donor = donor
	if d.Epoch != c.Epoch {
		d.Amount = 0
		d.Epoch = c.Epoch
	}
	return d, nil
}
