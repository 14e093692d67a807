// Package memory is an in-process escrow store. Writers are serialized by a
// mutex and stage their writes in an overlay that is merged on success and
// dropped on error.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"amanat.org/internal/escrow"
)

type donationKey struct {
	campaign escrow.ID
	donor    escrow.Identity
}

type state struct {
	orgs      map[escrow.ID]escrow.Organization
	creators  map[escrow.Identity]escrow.ID
	orgOrder  []escrow.ID
	campaigns map[escrow.ID]escrow.Campaign
	byOrg     map[escrow.ID][]escrow.ID
	donations map[donationKey]escrow.Donation
	balances  map[escrow.Identity]int64
	grace     time.Duration
	held      int64
}

func newState() state {
	return state{
		orgs:      make(map[escrow.ID]escrow.Organization),
		creators:  make(map[escrow.Identity]escrow.ID),
		campaigns: make(map[escrow.ID]escrow.Campaign),
		byOrg:     make(map[escrow.ID][]escrow.ID),
		donations: make(map[donationKey]escrow.Donation),
		balances:  make(map[escrow.Identity]int64),
	}
}

// Store implements escrow.Store in memory.
type Store struct {
	mu sync.RWMutex
	s  state
}

var _ escrow.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithGracePeriod sets the initial grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.s.grace = d
		}
	}
}

// New creates an empty store with the default grace period.
func New(opts ...Option) *Store {
	s := &Store{s: newState()}
	s.s.grace = escrow.DefaultGracePeriod
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs fn with exclusive access. Writes become visible only when fn
// returns nil.
func (s *Store) Update(ctx context.Context, fn func(escrow.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(&s.s)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View runs fn with shared access. Writes inside fn are discarded.
func (s *Store) View(ctx context.Context, fn func(escrow.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTx(&s.s))
}

// tx reads through a write overlay onto the committed state.
type tx struct {
	base *state

	orgs      map[escrow.ID]escrow.Organization
	newOrgs   []escrow.ID
	campaigns map[escrow.ID]escrow.Campaign
	newCamps  map[escrow.ID][]escrow.ID
	donations map[donationKey]escrow.Donation
	balances  map[escrow.Identity]int64
	grace     *time.Duration
	held      *int64
}

func newTx(base *state) *tx {
	return &tx{
		base:      base,
		orgs:      make(map[escrow.ID]escrow.Organization),
		campaigns: make(map[escrow.ID]escrow.Campaign),
		newCamps:  make(map[escrow.ID][]escrow.ID),
		donations: make(map[donationKey]escrow.Donation),
		balances:  make(map[escrow.Identity]int64),
	}
}

func (t *tx) commit() {
	b := t.base
	b.orgOrder = append(b.orgOrder, t.newOrgs...)
	for id, org := range t.orgs {
		b.orgs[id] = org
		b.creators[org.Creator] = id
	}
	for id, c := range t.campaigns {
		b.campaigns[id] = c
	}
	for org, list := range t.newCamps {
		b.byOrg[org] = append(b.byOrg[org], list...)
	}
	for k, d := range t.donations {
		if d.Amount == 0 {
			delete(b.donations, k)
			continue
		}
		b.donations[k] = d
	}
	for k, v := range t.balances {
		b.balances[k] = v
	}
	if t.grace != nil {
		b.grace = *t.grace
	}
	if t.held != nil {
		b.held = *t.held
	}
}

func (t *tx) Organization(_ context.Context, id escrow.ID) (escrow.Organization, bool, error) {
	if org, ok := t.orgs[id]; ok {
		return org, true, nil
	}
	org, ok := t.base.orgs[id]
	return org, ok, nil
}

func (t *tx) OrganizationByCreator(_ context.Context, creator escrow.Identity) (escrow.ID, bool, error) {
	for id, org := range t.orgs {
		if org.Creator == creator {
			return id, true, nil
		}
	}
	id, ok := t.base.creators[creator]
	return id, ok, nil
}

func (t *tx) OrganizationCount(context.Context) (uint64, error) {
	return uint64(len(t.base.orgOrder) + len(t.newOrgs)), nil
}

func (t *tx) ListOrganizations(ctx context.Context, from uint64, limit int) ([]escrow.Organization, error) {
	order := make([]escrow.ID, 0, len(t.base.orgOrder)+len(t.newOrgs))
	order = append(order, t.base.orgOrder...)
	order = append(order, t.newOrgs...)
	var out []escrow.Organization
	for i := from; i < uint64(len(order)) && len(out) < limit; i++ {
		org, _, _ := t.Organization(ctx, order[i])
		out = append(out, org)
	}
	return out, nil
}

func (t *tx) PutOrganization(_ context.Context, org escrow.Organization) error {
	_, staged := t.orgs[org.ID]
	_, committed := t.base.orgs[org.ID]
	if !staged && !committed {
		t.newOrgs = append(t.newOrgs, org.ID)
	}
	t.orgs[org.ID] = org
	return nil
}

func (t *tx) Campaign(_ context.Context, id escrow.ID) (escrow.Campaign, bool, error) {
	if c, ok := t.campaigns[id]; ok {
		return c, true, nil
	}
	c, ok := t.base.campaigns[id]
	return c, ok, nil
}

func (t *tx) CampaignCount(_ context.Context, org escrow.ID) (uint64, error) {
	return uint64(len(t.base.byOrg[org]) + len(t.newCamps[org])), nil
}

func (t *tx) ListCampaigns(ctx context.Context, org escrow.ID) ([]escrow.Campaign, error) {
	ids := append(append([]escrow.ID(nil), t.base.byOrg[org]...), t.newCamps[org]...)
	out := make([]escrow.Campaign, 0, len(ids))
	for _, id := range ids {
		c, _, _ := t.Campaign(ctx, id)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (t *tx) PutCampaign(_ context.Context, c escrow.Campaign) error {
	_, staged := t.campaigns[c.ID]
	_, committed := t.base.campaigns[c.ID]
	if !staged && !committed {
		t.newCamps[c.OrganizationID] = append(t.newCamps[c.OrganizationID], c.ID)
	}
	t.campaigns[c.ID] = c
	return nil
}

func (t *tx) Donation(_ context.Context, campaign escrow.ID, donor escrow.Identity) (escrow.Donation, error) {
	k := donationKey{campaign: campaign, donor: donor}
	if d, ok := t.donations[k]; ok {
		return d, nil
	}
	if d, ok := t.base.donations[k]; ok {
		return d, nil
	}
	return escrow.Donation{CampaignID: campaign, Donor: donor}, nil
}

func (t *tx) PutDonation(_ context.Context, d escrow.Donation) error {
	t.donations[donationKey{campaign: d.CampaignID, donor: d.Donor}] = d
	return nil
}

func (t *tx) GracePeriod(context.Context) (time.Duration, error) {
	if t.grace != nil {
		return *t.grace, nil
	}
	return t.base.grace, nil
}

func (t *tx) SetGracePeriod(_ context.Context, d time.Duration) error {
	t.grace = &d
	return nil
}

func (t *tx) Held(context.Context) (int64, error) {
	if t.held != nil {
		return *t.held, nil
	}
	return t.base.held, nil
}

func (t *tx) SetHeld(_ context.Context, amount int64) error {
	t.held = &amount
	return nil
}

func (t *tx) Balance(_ context.Context, account escrow.Identity) (int64, error) {
	if v, ok := t.balances[account]; ok {
		return v, nil
	}
	return t.base.balances[account], nil
}

func (t *tx) SetBalance(_ context.Context, account escrow.Identity, amount int64) error {
	t.balances[account] = amount
	return nil
}
