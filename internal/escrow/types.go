package escrow

import (
	"strings"
	"time"
)

// Identity is an authenticated caller (creator, donor or administrator).
// The transport layer is responsible for verifying it.
type Identity string

func (i Identity) String() string { return string(i) }

// Valid reports whether the identity is usable as an account key.
func (i Identity) Valid() bool {
	s := string(i)
	return strings.TrimSpace(s) == s && s != "" && len(s) <= maxIdentityLen
}

const (
	maxIdentityLen = 128
	maxNameLen     = 128
)

// Organization is a registered fundraising entity owned by exactly one creator.
type Organization struct {
	ID          ID        `json:"id"`
	Index       uint64    `json:"index"`
	Name        string    `json:"name"`
	Description Hash      `json:"description"`
	Creator     Identity  `json:"creator"`
	TrustScore  int64     `json:"trust_score"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// Campaign is a time-bounded fundraising goal under one organization.
//
// Amounts are minor units of the single value unit. TotalRaised drops by the
// refunded amount on each donor refund; TotalWithdrawn grows on each
// organization payout. The outstanding pool is TotalRaised - TotalWithdrawn.
type Campaign struct {
	ID             ID        `json:"id"`
	OrganizationID ID        `json:"organization_id"`
	Index          uint64    `json:"index"`
	Name           string    `json:"name"`
	Description    Hash      `json:"description"`
	TargetAmount   int64     `json:"target_amount"`
	TotalRaised    int64     `json:"total_raised"`
	TotalWithdrawn int64     `json:"total_withdrawn"`
	TotalRefunded  int64     `json:"total_refunded"`
	Timeline       int64     `json:"timeline"` // unix seconds
	Completed      bool      `json:"completed"`
	Epoch          uint64    `json:"epoch"`
	CreatedAt      time.Time `json:"created_at"`
}

// Pool returns the value still held in escrow for the campaign.
func (c Campaign) Pool() int64 { return c.TotalRaised - c.TotalWithdrawn }

// Donation is the outstanding amount of one donor in one campaign.
// A record whose Epoch is behind the campaign's epoch is logically zero:
// the pool it belonged to has already been paid to the organization.
type Donation struct {
	CampaignID ID       `json:"campaign_id"`
	Donor      Identity `json:"donor"`
	Amount     int64    `json:"amount"`
	Epoch      uint64   `json:"epoch"`
}

// CampaignStatus is a campaign together with its state at a point in time.
type CampaignStatus struct {
	Campaign
	State       State     `json:"state"`
	Pool        int64     `json:"pool"`
	GraceEndsAt int64     `json:"grace_ends_at"`
	AsOf        time.Time `json:"as_of"`
}

// validName rejects blank and oversized names. Names are hashed verbatim
// into identifiers, so they are never normalized here.
func validName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > maxNameLen {
		return ErrInvalidName
	}
	return nil
}
