package rpc

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"amanat.org/internal/escrow"
)

// Builder assembles a message. Integers are written as decimal strings so
// int64 values survive the float64 number type of Struct.
type Builder struct {
	s *structpb.Struct
}

func NewBuilder() *Builder {
	return &Builder{s: &structpb.Struct{Fields: map[string]*structpb.Value{}}}
}

func (b *Builder) Str(k, v string) *Builder {
	b.s.Fields[k] = structpb.NewStringValue(v)
	return b
}

func (b *Builder) Int(k string, v int64) *Builder {
	return b.Str(k, strconv.FormatInt(v, 10))
}

func (b *Builder) Uint(k string, v uint64) *Builder {
	return b.Str(k, strconv.FormatUint(v, 10))
}

func (b *Builder) Bool(k string, v bool) *Builder {
	b.s.Fields[k] = structpb.NewBoolValue(v)
	return b
}

func (b *Builder) Time(k string, v time.Time) *Builder {
	return b.Str(k, v.UTC().Format(time.RFC3339Nano))
}

func (b *Builder) Struct(k string, v *structpb.Struct) *Builder {
	b.s.Fields[k] = structpb.NewStructValue(v)
	return b
}

func (b *Builder) List(k string, items []*structpb.Struct) *Builder {
	vals := make([]*structpb.Value, 0, len(items))
	for _, it := range items {
		vals = append(vals, structpb.NewStructValue(it))
	}
	b.s.Fields[k] = structpb.NewListValue(&structpb.ListValue{Values: vals})
	return b
}

func (b *Builder) Build() *structpb.Struct { return b.s }

// Reader reads message fields. The first malformed field is kept in Err;
// missing fields read as zero values.
type Reader struct {
	s   *structpb.Struct
	err error
}

func Fields(s *structpb.Struct) *Reader { return &Reader{s: s} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(k string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("field %s: %w", k, err)
	}
}

func (r *Reader) value(k string) *structpb.Value {
	if r.s == nil {
		return nil
	}
	return r.s.GetFields()[k]
}

func (r *Reader) Str(k string) string {
	return r.value(k).GetStringValue()
}

func (r *Reader) Int(k string) int64 {
	v := r.value(k)
	switch v.GetKind().(type) {
	case nil:
		return 0
	case *structpb.Value_NumberValue:
		f := v.GetNumberValue()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			r.fail(k, fmt.Errorf("not an integer: %v", f))
			return 0
		}
		return int64(f)
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(v.GetStringValue(), 10, 64)
		if err != nil {
			r.fail(k, err)
		}
		return n
	default:
		r.fail(k, fmt.Errorf("unexpected kind %T", v.GetKind()))
		return 0
	}
}

func (r *Reader) Uint(k string) uint64 {
	v := r.value(k)
	if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
		n, err := strconv.ParseUint(s.StringValue, 10, 64)
		if err != nil {
			r.fail(k, err)
		}
		return n
	}
	n := r.Int(k)
	if n < 0 {
		r.fail(k, fmt.Errorf("negative value %d", n))
		return 0
	}
	return uint64(n)
}

func (r *Reader) Bool(k string) bool {
	return r.value(k).GetBoolValue()
}

func (r *Reader) Time(k string) time.Time {
	raw := r.Str(k)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		r.fail(k, err)
	}
	return t
}

func (r *Reader) ID(k string) escrow.ID {
	id, err := escrow.ParseID(r.Str(k))
	if err != nil {
		r.fail(k, err)
	}
	return id
}

func (r *Reader) Hash(k string) escrow.Hash {
	raw := r.Str(k)
	if raw == "" {
		return escrow.Hash{}
	}
	h, err := escrow.ParseHash(raw)
	if err != nil {
		r.fail(k, err)
	}
	return h
}

func (r *Reader) Struct(k string) *structpb.Struct {
	return r.value(k).GetStructValue()
}

func (r *Reader) List(k string) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range r.value(k).GetListValue().GetValues() {
		out = append(out, v.GetStructValue())
	}
	return out
}

// --- escrow types ---

func EncodeOrganization(o escrow.Organization) *structpb.Struct {
	return NewBuilder().
		Str("id", o.ID.String()).
		Uint("index", o.Index).
		Str("name", o.Name).
		Str("description", o.Description.String()).
		Str("creator", string(o.Creator)).
		Int("trust_score", o.TrustScore).
		Bool("verified", o.Verified).
		Time("created_at", o.CreatedAt).
		Build()
}

func DecodeOrganization(s *structpb.Struct) (escrow.Organization, error) {
	r := Fields(s)
	o := escrow.Organization{
		ID:          r.ID("id"),
		Index:       r.Uint("index"),
		Name:        r.Str("name"),
		Description: r.Hash("description"),
		Creator:     escrow.Identity(r.Str("creator")),
		TrustScore:  r.Int("trust_score"),
		Verified:    r.Bool("verified"),
		CreatedAt:   r.Time("created_at"),
	}
	return o, r.Err()
}

func campaignFields(b *Builder, c escrow.Campaign) *Builder {
	return b.
		Str("id", c.ID.String()).
		Str("organization_id", c.OrganizationID.String()).
		Uint("index", c.Index).
		Str("name", c.Name).
		Str("description", c.Description.String()).
		Int("target_amount", c.TargetAmount).
		Int("total_raised", c.TotalRaised).
		Int("total_withdrawn", c.TotalWithdrawn).
		Int("total_refunded", c.TotalRefunded).
		Int("timeline", c.Timeline).
		Bool("completed", c.Completed).
		Uint("epoch", c.Epoch).
		Time("created_at", c.CreatedAt)
}

func readCampaign(r *Reader) escrow.Campaign {
	return escrow.Campaign{
		ID:             r.ID("id"),
		OrganizationID: r.ID("organization_id"),
		Index:          r.Uint("index"),
		Name:           r.Str("name"),
		Description:    r.Hash("description"),
		TargetAmount:   r.Int("target_amount"),
		TotalRaised:    r.Int("total_raised"),
		TotalWithdrawn: r.Int("total_withdrawn"),
		TotalRefunded:  r.Int("total_refunded"),
		Timeline:       r.Int("timeline"),
		Completed:      r.Bool("completed"),
		Epoch:          r.Uint("epoch"),
		CreatedAt:      r.Time("created_at"),
	}
}

func EncodeCampaign(c escrow.Campaign) *structpb.Struct {
	return campaignFields(NewBuilder(), c).Build()
}

func DecodeCampaign(s *structpb.Struct) (escrow.Campaign, error) {
	r := Fields(s)
	c := readCampaign(r)
	return c, r.Err()
}

func EncodeStatus(st escrow.CampaignStatus) *structpb.Struct {
	return campaignFields(NewBuilder(), st.Campaign).
		Str("state", st.State.String()).
		Int("pool", st.Pool).
		Int("grace_ends_at", st.GraceEndsAt).
		Time("as_of", st.AsOf).
		Build()
}

func DecodeStatus(s *structpb.Struct) (escrow.CampaignStatus, error) {
	r := Fields(s)
	st := escrow.CampaignStatus{
		Campaign:    readCampaign(r),
		Pool:        r.Int("pool"),
		GraceEndsAt: r.Int("grace_ends_at"),
		AsOf:        r.Time("as_of"),
	}
	state, err := escrow.ParseState(r.Str("state"))
	if err != nil {
		r.fail("state", err)
	}
	st.State = state
	return st, r.Err()
}

func EncodeContribution(c escrow.Contribution) *structpb.Struct {
	return NewBuilder().
		Struct("campaign", EncodeCampaign(c.Campaign)).
		Str("donor", string(c.Donor)).
		Int("amount", c.Amount).
		Int("outstanding", c.Outstanding).
		Bool("just_completed", c.JustCompleted).
		Build()
}

func DecodeContribution(s *structpb.Struct) (escrow.Contribution, error) {
	r := Fields(s)
	c, err := DecodeCampaign(r.Struct("campaign"))
	if err != nil {
		return escrow.Contribution{}, fmt.Errorf("campaign: %w", err)
	}
	out := escrow.Contribution{
		Campaign:      c,
		Donor:         escrow.Identity(r.Str("donor")),
		Amount:        r.Int("amount"),
		Outstanding:   r.Int("outstanding"),
		JustCompleted: r.Bool("just_completed"),
	}
	return out, r.Err()
}

func EncodeWithdrawal(w escrow.Withdrawal) *structpb.Struct {
	return NewBuilder().
		Struct("campaign", EncodeCampaign(w.Campaign)).
		Str("recipient", string(w.Recipient)).
		Int("amount", w.Amount).
		Build()
}

func DecodeWithdrawal(s *structpb.Struct) (escrow.Withdrawal, error) {
	r := Fields(s)
	c, err := DecodeCampaign(r.Struct("campaign"))
	if err != nil {
		return escrow.Withdrawal{}, fmt.Errorf("campaign: %w", err)
	}
	out := escrow.Withdrawal{
		Campaign:  c,
		Recipient: escrow.Identity(r.Str("recipient")),
		Amount:    r.Int("amount"),
	}
	return out, r.Err()
}
