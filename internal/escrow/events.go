package escrow

import (
	"context"
	"time"
)

// EventType names an observable escrow event.
type EventType string

const (
	EventOrganizationCreated  EventType = "OrganizationCreated"
	EventCampaignCreated      EventType = "CampaignCreated"
	EventNewDonation          EventType = "NewDonation"
	EventCampaignCompleted    EventType = "CampaignCompleted"
	EventWithdrawedDonation   EventType = "WithdrawedDonation"
	EventWithdrawedFunds      EventType = "WithdrawedFunds"
	EventTrustScoreUpdated    EventType = "TrustScoreUpdated"
	EventOrganizationVerified EventType = "OrganizationVerified"
	EventGracePeriodUpdated   EventType = "GracePeriodUpdated"
)

// Event is the payload of an escrow event. Fields that do not apply to the
// event type are left zero.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	OrganizationID ID        `json:"organization_id"`
	CampaignID     ID        `json:"campaign_id"`
	Identity       Identity  `json:"identity,omitempty"`
	Name           string    `json:"name,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Score          int64     `json:"score"`
	GracePeriod    int64     `json:"grace_period_seconds"`
	At             time.Time `json:"at"`
}

// EventSink receives events after the operation that raised them committed,
// in emission order.
type EventSink interface {
	Emit(ctx context.Context, evt Event)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, evt Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, evt)
		}
	}
}

type discardSink struct{}

func (discardSink) Emit(context.Context, Event) {}
