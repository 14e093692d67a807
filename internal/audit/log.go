package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["caller"] = userID
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Sink writes every committed escrow event to the audit log.
type Sink struct{}

var _ escrow.EventSink = Sink{}

func (Sink) Emit(ctx context.Context, evt escrow.Event) {
	fields := map[string]any{
		"event_id": evt.ID,
		"at":       evt.At.UTC().Format(time.RFC3339Nano),
	}
	if !evt.OrganizationID.IsZero() {
		fields["organization_id"] = evt.OrganizationID.String()
	}
	if !evt.CampaignID.IsZero() {
		fields["campaign_id"] = evt.CampaignID.String()
	}
	if evt.Identity != "" {
		fields["identity"] = string(evt.Identity)
	}
	if evt.Name != "" {
		fields["name"] = evt.Name
	}
	switch evt.Type {
	case escrow.EventNewDonation, escrow.EventWithdrawedDonation, escrow.EventWithdrawedFunds:
		fields["amount"] = evt.Amount
	case escrow.EventTrustScoreUpdated, escrow.EventOrganizationVerified:
		fields["score"] = evt.Score
	case escrow.EventGracePeriodUpdated:
		fields["grace_period_seconds"] = evt.GracePeriod
	}
	_ = LogEvent(ctx, "escrow."+string(evt.Type), fields)
}
