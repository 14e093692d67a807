package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/obs"
	"amanat.org/internal/rpc"
)

const serviceName = "amanat-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCServer implements amanat.v1.Escrow and grpc.health.v1.Health.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	engine    *escrow.Engine
	readiness readinessChecker
	version   string
}

var _ rpc.EscrowServer = (*GRPCServer)(nil)

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(engine *escrow.Engine, r readinessChecker, version string) *GRPCServer {
	return &GRPCServer{
		engine:    engine,
		readiness: r,
		version:   version,
	}
}

// Register adds the escrow and health services to gs.
func (s *GRPCServer) Register(gs *grpc.Server) {
	rpc.RegisterEscrowServer(gs, s)
	healthpb.RegisterHealthServer(gs, s)
}

// Check evaluates readiness. On failure returns gRPC Unavailable error.
func (s *GRPCServer) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			obs.SetReady(false)
			return nil, status.Errorf(codes.Unavailable, "not ready: %v", err)
		}
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// UnaryAuthInterceptor resolves the caller from "authorization: Bearer"
// metadata. Calls without a token run anonymously; a bad token is rejected.
func UnaryAuthInterceptor(a *auth.Authority) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 || a == nil {
			return handler(ctx, req)
		}
		token, ok := auth.BearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid authorization scheme")
		}
		identity, err := a.Identity(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		ctx = auth.ContextWithUser(ctx, identity)
		ctx = auth.ContextWithToken(ctx, token)
		return handler(ctx, req)
	}
}

func callerOf(ctx context.Context) escrow.Identity {
	id, _ := auth.UserIDFromContext(ctx)
	return escrow.Identity(id)
}

func badRequest(r *rpc.Reader) error {
	if err := r.Err(); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// finish counts the operation and converts the error for the wire.
func finish(op string, out *structpb.Struct, err error) (*structpb.Struct, error) {
	obs.ObserveOp(op, obs.Outcome(err))
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return out, nil
}

func (s *GRPCServer) CreateOrganization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	name, desc := r.Str("name"), r.Hash("description")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	org, err := s.engine.CreateOrganization(ctx, callerOf(ctx), name, desc)
	return finish("create_organization", rpc.EncodeOrganization(org), err)
}

func (s *GRPCServer) AddCampaign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org := r.ID("organization_id")
	name, desc := r.Str("name"), r.Hash("description")
	target, timeline := r.Int("target_amount"), r.Int("timeline")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	c, err := s.engine.AddCampaign(ctx, callerOf(ctx), org, name, desc, target, timeline)
	return finish("add_campaign", rpc.EncodeCampaign(c), err)
}

func (s *GRPCServer) Contribute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, campaign, amount := r.ID("organization_id"), r.ID("campaign_id"), r.Int("amount")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	res, err := s.engine.Contribute(ctx, callerOf(ctx), org, campaign, amount)
	return finish("contribute", rpc.EncodeContribution(res), err)
}

func (s *GRPCServer) WithdrawDonation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, campaign := r.ID("organization_id"), r.ID("campaign_id")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	res, err := s.engine.WithdrawDonation(ctx, callerOf(ctx), org, campaign)
	return finish("withdraw_donation", rpc.EncodeWithdrawal(res), err)
}

func (s *GRPCServer) WithdrawFunds(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, campaign := r.ID("organization_id"), r.ID("campaign_id")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	res, err := s.engine.WithdrawFunds(ctx, callerOf(ctx), org, campaign)
	return finish("withdraw_funds", rpc.EncodeWithdrawal(res), err)
}

func (s *GRPCServer) UpdateTrustScore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, score := r.ID("organization_id"), r.Int("score")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	o, err := s.engine.UpdateTrustScore(ctx, callerOf(ctx), org, score)
	return finish("update_trust_score", rpc.EncodeOrganization(o), err)
}

func (s *GRPCServer) VerifyOrganization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, base := r.ID("organization_id"), r.Int("base_score")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	o, err := s.engine.VerifyOrganization(ctx, callerOf(ctx), org, base)
	return finish("verify_organization", rpc.EncodeOrganization(o), err)
}

func (s *GRPCServer) UpdateGracePeriod(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	secs := r.Int("seconds")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	d, err := s.engine.UpdateGracePeriod(ctx, callerOf(ctx), secs)
	return finish("update_grace_period", secondsMsg(d), err)
}

func (s *GRPCServer) GetOrganization(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	id := r.ID("organization_id")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	org, err := s.engine.Organization(ctx, id)
	return finish("get_organization", rpc.EncodeOrganization(org), err)
}

func (s *GRPCServer) ListOrganizations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	from, limit := r.Uint("from"), r.Int("limit")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	orgs, err := s.engine.Organizations(ctx, from, int(limit))
	items := make([]*structpb.Struct, 0, len(orgs))
	for _, o := range orgs {
		items = append(items, rpc.EncodeOrganization(o))
	}
	return finish("list_organizations", rpc.NewBuilder().List("items", items).Build(), err)
}

func (s *GRPCServer) IsOrganizationCreator(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, identity := r.ID("organization_id"), escrow.Identity(r.Str("identity"))
	if err := badRequest(r); err != nil {
		return nil, err
	}
	ok, err := s.engine.IsOrganizationCreator(ctx, org, identity)
	return finish("is_organization_creator", rpc.NewBuilder().Bool("is_creator", ok).Build(), err)
}

func (s *GRPCServer) GetCampaign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org, campaign := r.ID("organization_id"), r.ID("campaign_id")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	st, err := s.engine.CampaignStatus(ctx, org, campaign)
	return finish("get_campaign", rpc.EncodeStatus(st), err)
}

func (s *GRPCServer) ListCampaigns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	org := r.ID("organization_id")
	if err := badRequest(r); err != nil {
		return nil, err
	}
	list, err := s.engine.Campaigns(ctx, org)
	items := make([]*structpb.Struct, 0, len(list))
	for _, st := range list {
		items = append(items, rpc.EncodeStatus(st))
	}
	return finish("list_campaigns", rpc.NewBuilder().List("items", items).Build(), err)
}

func (s *GRPCServer) GetDonation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := rpc.Fields(in)
	campaign, donor := r.ID("campaign_id"), escrow.Identity(r.Str("donor"))
	if err := badRequest(r); err != nil {
		return nil, err
	}
	amount, err := s.engine.Donation(ctx, campaign, donor)
	return finish("get_donation", rpc.NewBuilder().Int("amount", amount).Build(), err)
}

func (s *GRPCServer) GetGracePeriod(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	d, err := s.engine.GracePeriod(ctx)
	return finish("get_grace_period", secondsMsg(d), err)
}

func (s *GRPCServer) GetBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	identity := escrow.Identity(rpc.Fields(in).Str("identity"))
	bal, err := s.engine.Balance(ctx, identity)
	return finish("get_balance", rpc.NewBuilder().Int("balance", bal).Build(), err)
}

// GetInfo returns service metadata.
func (s *GRPCServer) GetInfo(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return rpc.NewBuilder().
		Str("name", serviceName).
		Str("version", s.version).
		Str("time_rfc3339", time.Now().UTC().Format(time.RFC3339)).
		Build(), nil
}

func secondsMsg(d time.Duration) *structpb.Struct {
	return rpc.NewBuilder().Int("seconds", int64(d/time.Second)).Build()
}
