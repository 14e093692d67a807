package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"amanat.org/internal/escrow"
)

func TestUpdateDiscardsWritesOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx escrow.Tx) error {
		if err := tx.PutOrganization(ctx, escrow.Organization{ID: escrow.ID{1}, Creator: "c"}); err != nil {
			return err
		}
		if err := tx.SetHeld(ctx, 42); err != nil {
			return err
		}
		// Staged writes are visible inside the transaction.
		if _, ok, _ := tx.Organization(ctx, escrow.ID{1}); !ok {
			t.Fatal("staged organization not visible")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = s.View(ctx, func(tx escrow.Tx) error {
		if _, ok, _ := tx.Organization(ctx, escrow.ID{1}); ok {
			t.Fatal("rolled back organization is visible")
		}
		if _, ok, _ := tx.OrganizationByCreator(ctx, "c"); ok {
			t.Fatal("rolled back creator index is visible")
		}
		if held, _ := tx.Held(ctx); held != 0 {
			t.Fatalf("held = %d after rollback", held)
		}
		if n, _ := tx.OrganizationCount(ctx); n != 0 {
			t.Fatalf("count = %d after rollback", n)
		}
		return nil
	})
}

func TestUpdateCommitsOrdering(t *testing.T) {
	s := New(WithGracePeriod(time.Minute))
	ctx := context.Background()
	org := escrow.ID{1}

	err := s.Update(ctx, func(tx escrow.Tx) error {
		for i, name := range []string{"a", "b", "c"} {
			id := escrow.ID{byte(10 + i)}
			if err := tx.PutCampaign(ctx, escrow.Campaign{ID: id, OrganizationID: org, Index: uint64(i), Name: name}); err != nil {
				return err
			}
		}
		return tx.PutDonation(ctx, escrow.Donation{CampaignID: escrow.ID{10}, Donor: "d", Amount: 5})
	})
	if err != nil {
		t.Fatal(err)
	}
	// Updating an existing campaign must not append it twice.
	err = s.Update(ctx, func(tx escrow.Tx) error {
		c, _, _ := tx.Campaign(ctx, escrow.ID{10})
		c.TotalRaised = 5
		return tx.PutCampaign(ctx, c)
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.View(ctx, func(tx escrow.Tx) error {
		list, _ := tx.ListCampaigns(ctx, org)
		if len(list) != 3 || list[0].Name != "a" || list[2].Name != "c" {
			t.Fatalf("unexpected campaigns: %+v", list)
		}
		if list[0].TotalRaised != 5 {
			t.Fatalf("update lost: %+v", list[0])
		}
		d, _ := tx.Donation(ctx, escrow.ID{10}, "d")
		if d.Amount != 5 {
			t.Fatalf("donation = %d", d.Amount)
		}
		if g, _ := tx.GracePeriod(ctx); g != time.Minute {
			t.Fatalf("grace = %s", g)
		}
		return nil
	})
}

func TestCancelledContextIsRejected(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Update(ctx, func(escrow.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected cancellation before running fn, got %v (called=%v)", err, called)
	}
}
