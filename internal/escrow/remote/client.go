// Package remote adapts the amanat.v1.Escrow gRPC service back to typed
// escrow calls.
package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/rpc"
)

// Client wraps the gRPC escrow service.
type Client struct {
	cc    grpc.ClientConnInterface
	conn  *grpc.ClientConn
	token string
}

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: conn, conn: conn}, nil
}

// New wraps an existing connection.
func New(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// WithToken returns a copy of the client that sends token on every call.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out, err := rpc.Invoke(c.outgoing(ctx), c.cc, method, in)
	if err != nil {
		return nil, mapEscrowError(err)
	}
	return out, nil
}

// outgoing attaches the bearer token from ctx, falling back to the client's.
func (c *Client) outgoing(ctx context.Context) context.Context {
	token, ok := auth.TokenFromContext(ctx)
	if !ok {
		token = c.token
	}
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func mapEscrowError(err error) error { return rpc.FromStatus(err) }

func (c *Client) CreateOrganization(ctx context.Context, name string, description escrow.Hash) (escrow.Organization, error) {
	out, err := c.call(ctx, rpc.MethodCreateOrganization, rpc.NewBuilder().
		Str("name", name).
		Str("description", description.String()).
		Build())
	if err != nil {
		return escrow.Organization{}, err
	}
	return rpc.DecodeOrganization(out)
}

func (c *Client) AddCampaign(ctx context.Context, org escrow.ID, name string, description escrow.Hash, target, timeline int64) (escrow.Campaign, error) {
	out, err := c.call(ctx, rpc.MethodAddCampaign, rpc.NewBuilder().
		Str("organization_id", org.String()).
		Str("name", name).
		Str("description", description.String()).
		Int("target_amount", target).
		Int("timeline", timeline).
		Build())
	if err != nil {
		return escrow.Campaign{}, err
	}
	return rpc.DecodeCampaign(out)
}

func (c *Client) Contribute(ctx context.Context, org, campaign escrow.ID, amount int64) (escrow.Contribution, error) {
	out, err := c.call(ctx, rpc.MethodContribute, campaignRef(org, campaign).Int("amount", amount).Build())
	if err != nil {
		return escrow.Contribution{}, err
	}
	return rpc.DecodeContribution(out)
}

func (c *Client) WithdrawDonation(ctx context.Context, org, campaign escrow.ID) (escrow.Withdrawal, error) {
	out, err := c.call(ctx, rpc.MethodWithdrawDonation, campaignRef(org, campaign).Build())
	if err != nil {
		return escrow.Withdrawal{}, err
	}
	return rpc.DecodeWithdrawal(out)
}

func (c *Client) WithdrawFunds(ctx context.Context, org, campaign escrow.ID) (escrow.Withdrawal, error) {
	out, err := c.call(ctx, rpc.MethodWithdrawFunds, campaignRef(org, campaign).Build())
	if err != nil {
		return escrow.Withdrawal{}, err
	}
	return rpc.DecodeWithdrawal(out)
}

func (c *Client) UpdateTrustScore(ctx context.Context, org escrow.ID, score int64) (escrow.Organization, error) {
	out, err := c.call(ctx, rpc.MethodUpdateTrustScore, rpc.NewBuilder().
		Str("organization_id", org.String()).
		Int("score", score).
		Build())
	if err != nil {
		return escrow.Organization{}, err
	}
	return rpc.DecodeOrganization(out)
}

func (c *Client) VerifyOrganization(ctx context.Context, org escrow.ID, baseScore int64) (escrow.Organization, error) {
	out, err := c.call(ctx, rpc.MethodVerifyOrganization, rpc.NewBuilder().
		Str("organization_id", org.String()).
		Int("base_score", baseScore).
		Build())
	if err != nil {
		return escrow.Organization{}, err
	}
	return rpc.DecodeOrganization(out)
}

func (c *Client) UpdateGracePeriod(ctx context.Context, secs int64) (time.Duration, error) {
	out, err := c.call(ctx, rpc.MethodUpdateGracePeriod, rpc.NewBuilder().Int("seconds", secs).Build())
	if err != nil {
		return 0, err
	}
	return readSeconds(out)
}

func (c *Client) Organization(ctx context.Context, id escrow.ID) (escrow.Organization, error) {
	out, err := c.call(ctx, rpc.MethodGetOrganization, rpc.NewBuilder().Str("organization_id", id.String()).Build())
	if err != nil {
		return escrow.Organization{}, err
	}
	return rpc.DecodeOrganization(out)
}

func (c *Client) Organizations(ctx context.Context, from uint64, limit int) ([]escrow.Organization, error) {
	out, err := c.call(ctx, rpc.MethodListOrganizations, rpc.NewBuilder().
		Uint("from", from).
		Int("limit", int64(limit)).
		Build())
	if err != nil {
		return nil, err
	}
	items := rpc.Fields(out).List("items")
	orgs := make([]escrow.Organization, 0, len(items))
	for _, it := range items {
		o, err := rpc.DecodeOrganization(it)
		if err != nil {
			return nil, fmt.Errorf("decode organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, nil
}

func (c *Client) IsOrganizationCreator(ctx context.Context, org escrow.ID, identity escrow.Identity) (bool, error) {
	out, err := c.call(ctx, rpc.MethodIsOrganizationCreator, rpc.NewBuilder().
		Str("organization_id", org.String()).
		Str("identity", string(identity)).
		Build())
	if err != nil {
		return false, err
	}
	return rpc.Fields(out).Bool("is_creator"), nil
}

func (c *Client) CampaignStatus(ctx context.Context, org, campaign escrow.ID) (escrow.CampaignStatus, error) {
	out, err := c.call(ctx, rpc.MethodGetCampaign, campaignRef(org, campaign).Build())
	if err != nil {
		return escrow.CampaignStatus{}, err
	}
	return rpc.DecodeStatus(out)
}

func (c *Client) Campaigns(ctx context.Context, org escrow.ID) ([]escrow.CampaignStatus, error) {
	out, err := c.call(ctx, rpc.MethodListCampaigns, rpc.NewBuilder().Str("organization_id", org.String()).Build())
	if err != nil {
		return nil, err
	}
	items := rpc.Fields(out).List("items")
	list := make([]escrow.CampaignStatus, 0, len(items))
	for _, it := range items {
		st, err := rpc.DecodeStatus(it)
		if err != nil {
			return nil, fmt.Errorf("decode campaign: %w", err)
		}
		list = append(list, st)
	}
	return list, nil
}

func (c *Client) Donation(ctx context.Context, campaign escrow.ID, donor escrow.Identity) (int64, error) {
	out, err := c.call(ctx, rpc.MethodGetDonation, rpc.NewBuilder().
		Str("campaign_id", campaign.String()).
		Str("donor", string(donor)).
		Build())
	if err != nil {
		return 0, err
	}
	return readInt(out, "amount")
}

func (c *Client) GracePeriod(ctx context.Context) (time.Duration, error) {
	out, err := c.call(ctx, rpc.MethodGetGracePeriod, rpc.NewBuilder().Build())
	if err != nil {
		return 0, err
	}
	return readSeconds(out)
}

func (c *Client) Balance(ctx context.Context, identity escrow.Identity) (int64, error) {
	out, err := c.call(ctx, rpc.MethodGetBalance, rpc.NewBuilder().Str("identity", string(identity)).Build())
	if err != nil {
		return 0, err
	}
	return readInt(out, "balance")
}

// Info returns the server name and version.
func (c *Client) Info(ctx context.Context) (name, version string, err error) {
	out, err := c.call(ctx, rpc.MethodGetInfo, rpc.NewBuilder().Build())
	if err != nil {
		return "", "", err
	}
	r := rpc.Fields(out)
	return r.Str("name"), r.Str("version"), nil
}

// Helpers -----------------------------------------------------------------

func campaignRef(org, campaign escrow.ID) *rpc.Builder {
	return rpc.NewBuilder().
		Str("organization_id", org.String()).
		Str("campaign_id", campaign.String())
}

func readInt(s *structpb.Struct, k string) (int64, error) {
	r := rpc.Fields(s)
	v := r.Int(k)
	return v, r.Err()
}

func readSeconds(s *structpb.Struct) (time.Duration, error) {
	secs, err := readInt(s, "seconds")
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// WithTimeout returns a context with default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
