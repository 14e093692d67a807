package escrow

import (
	"context"
	"fmt"
	"time"

	"amanat.org/internal/ids"
)

// Engine is the escrow state machine. Every mutating method runs in one
// store transaction and emits its events only after that transaction
// committed.
type Engine struct {
	store  Store
	clock  Clock
	sink   EventSink
	admins map[Identity]struct{}
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithEventSink sets where committed events are delivered.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithAdministrators sets the identities allowed to run administrative
// operations (trust scores, verification, grace period).
func WithAdministrators(admins ...Identity) Option {
	return func(e *Engine) {
		for _, a := range admins {
			if a.Valid() {
				e.admins[a] = struct{}{}
			}
		}
	}
}

// NewEngine builds an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		clock:  SystemClock,
		sink:   discardSink{},
		admins: make(map[Identity]struct{}),
		newID:  ids.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Contribution is the outcome of a successful contribution.
type Contribution struct {
	Campaign    Campaign `json:"campaign"`
	Donor       Identity `json:"donor"`
	Amount      int64    `json:"amount"`
	Outstanding int64    `json:"outstanding"`
	// JustCompleted is set on the contribution that reached the target.
	JustCompleted bool `json:"just_completed"`
}

// Withdrawal is the outcome of a refund or an organization payout.
type Withdrawal struct {
	Campaign  Campaign `json:"campaign"`
	Recipient Identity `json:"recipient"`
	Amount    int64    `json:"amount"`
}

type txn struct {
	Tx
	now    time.Time
	events []Event
}

func (t *txn) registry() registry { return registry{tx: t.Tx} }
func (t *txn) ledger() ledger { return ledger{tx: t.Tx} }

func (t *txn) emit(evt Event) {
	evt.At = t.now
	t.events = append(t.events, evt)
}

func (e *Engine) update(ctx context.Context, fn func(t *txn) error) error {
	var t txn
	err := e.store.Update(ctx, func(tx Tx) error {
		t = txn{Tx: tx, now: e.clock.Now()}
		return fn(&t)
	})
	if err != nil {
		return err
	}
	for _, evt := range t.events {
		evt.ID = e.newID()
		e.sink.Emit(ctx, evt)
	}
	return nil
}

func (e *Engine) view(ctx context.Context, fn func(t *txn) error) error {
	return e.store.View(ctx, func(tx Tx) error {
		return fn(&txn{Tx: tx, now: e.clock.Now()})
	})
}

func requireIdentity(id Identity) error {
	if !id.Valid() {
		return ErrUnauthenticated
	}
	return nil
}

// CreateOrganization registers an organization owned by caller.
func (e *Engine) CreateOrganization(ctx context.Context, caller Identity, name string, description Hash) (Organization, error) {
	if err := requireIdentity(caller); err != nil {
		return Organization{}, err
	}
	var org Organization
	err := e.update(ctx, func(t *txn) error {
		var err error
		org, err = t.registry().createOrganization(ctx, name, description, caller, t.now)
		if err != nil {
			return err
		}
		t.emit(Event{Type: EventOrganizationCreated, Identity: caller, OrganizationID: org.ID, Name: org.Name})
		return nil
	})
	return org, err
}

// AddCampaign creates a campaign under an organization the caller created.
func (e *Engine) AddCampaign(ctx context.Context, caller Identity, org ID, name string, description Hash, target, timeline int64) (Campaign, error) {
	if err := requireIdentity(caller); err != nil {
		return Campaign{}, err
	}
	var c Campaign
	err := e.update(ctx, func(t *txn) error {
		var err error
		c, err = t.registry().addCampaign(ctx, org, campaignSpec{
			Name:        name,
			Description: description,
			Target:      target,
			Timeline:    timeline,
		}, caller, t.now)
		if err != nil {
			return err
		}
		t.emit(Event{Type: EventCampaignCreated, OrganizationID: org, CampaignID: c.ID, Name: c.Name})
		return nil
	})
	return c, err
}

// Contribute records a donation of amount and moves it into escrow. The
// contribution that first brings the total to the target completes the
// campaign; later contributions are still accepted.
func (e *Engine) Contribute(ctx context.Context, donor Identity, org, campaign ID, amount int64) (Contribution, error) {
	if err := requireIdentity(donor); err != nil {
		return Contribution{}, err
	}
	if amount <= 0 {
		return Contribution{}, ErrZeroAmount
	}
	var res Contribution
	err := e.update(ctx, func(t *txn) error {
		c, err := t.registry().campaign(ctx, org, campaign)
		if err != nil {
			return err
		}
		raised, err := t.ledger().recordContribution(ctx, &c, donor, amount)
		if err != nil {
			return err
		}
		justCompleted := !c.Completed && raised >= c.TargetAmount
		if justCompleted {
			c.Completed = true
		}
		if err := t.PutCampaign(ctx, c); err != nil {
			return fmt.Errorf("store campaign: %w", err)
		}
		outstanding, err := t.ledger().outstanding(ctx, c, donor)
		if err != nil {
			return err
		}
		t.emit(Event{Type: EventNewDonation, Identity: donor, Amount: amount, CampaignID: c.ID, OrganizationID: org})
		if justCompleted {
			t.emit(Event{Type: EventCampaignCompleted, OrganizationID: org, CampaignID: c.ID})
		}
		res = Contribution{Campaign: c, Donor: donor, Amount: amount, Outstanding: outstanding, JustCompleted: justCompleted}
		return nil
	})
	return res, err
}

// WithdrawDonation refunds the donor's outstanding balance. It is only
// allowed once the grace period after the deadline has elapsed and the
// campaign never completed.
func (e *Engine) WithdrawDonation(ctx context.Context, donor Identity, org, campaign ID) (Withdrawal, error) {
	if err := requireIdentity(donor); err != nil {
		return Withdrawal{}, err
	}
	var res Withdrawal
	err := e.update(ctx, func(t *txn) error {
		c, err := t.registry().campaign(ctx, org, campaign)
		if err != nil {
			return err
		}
		// A donor with nothing outstanding gets ErrNoDonationsMade whatever
		// the state, so a paid-out campaign always answers the same way.
		if owed, err := t.ledger().outstanding(ctx, c, donor); err != nil {
			return err
		} else if owed <= 0 {
			return ErrNoDonationsMade
		}
		grace, err := t.GracePeriod(ctx)
		if err != nil {
			return fmt.Errorf("load grace period: %w", err)
		}
		if StateAt(c, t.now, grace) != StateGraceExpired {
			return ErrCannotWithdrawOutOfGracePeriod
		}
		amount, err := t.ledger().clearDonor(ctx, &c, donor)
		if err != nil {
			return err
		}
		if err := t.ledger().pay(ctx, donor, amount); err != nil {
			return err
		}
		if err := t.PutCampaign(ctx, c); err != nil {
			return fmt.Errorf("store campaign: %w", err)
		}
		t.emit(Event{Type: EventWithdrawedDonation, Identity: donor, Amount: amount, OrganizationID: org, CampaignID: c.ID})
		res = Withdrawal{Campaign: c, Recipient: donor, Amount: amount}
		return nil
	})
	return res, err
}

// WithdrawFunds pays the whole outstanding pool to the organization's
// creator. It is allowed on a completed campaign at any time, and on an
// incomplete one once the grace period has elapsed.
func (e *Engine) WithdrawFunds(ctx context.Context, caller Identity, org, campaign ID) (Withdrawal, error) {
	if err := requireIdentity(caller); err != nil {
		return Withdrawal{}, err
	}
	var res Withdrawal
	err := e.update(ctx, func(t *txn) error {
		o, err := t.registry().organization(ctx, org)
		if err != nil {
			return err
		}
		c, err := t.registry().campaign(ctx, org, campaign)
		if err != nil {
			return err
		}
		if o.Creator != caller {
			return ErrNotOrganizationCreator
		}
		if c.Pool() <= 0 {
			return ErrNoDonationsMade
		}
		grace, err := t.GracePeriod(ctx)
		if err != nil {
			return fmt.Errorf("load grace period: %w", err)
		}
		switch StateAt(c, t.now, grace) {
		case StateCompleted, StateGraceExpired:
		default:
			return ErrCampaignOngoing
		}
		amount, err := t.ledger().clearAllForCampaign(&c)
		if err != nil {
			return err
		}
		if err := t.ledger().pay(ctx, o.Creator, amount); err != nil {
			return err
		}
		if err := t.PutCampaign(ctx, c); err != nil {
			return fmt.Errorf("store campaign: %w", err)
		}
		t.emit(Event{Type: EventWithdrawedFunds, Amount: amount, OrganizationID: org, CampaignID: c.ID, Identity: o.Creator})
		res = Withdrawal{Campaign: c, Recipient: o.Creator, Amount: amount}
		return nil
	})
	return res, err
}
