// Package rpc describes the amanat.v1.Escrow gRPC service. Messages are
// google.protobuf.Struct values; the field layout of each message is fixed
// by the encoders in this package.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "amanat.v1.Escrow"

const (
	MethodCreateOrganization    = "CreateOrganization"
	MethodAddCampaign           = "AddCampaign"
	MethodContribute            = "Contribute"
	MethodWithdrawDonation      = "WithdrawDonation"
	MethodWithdrawFunds         = "WithdrawFunds"
	MethodUpdateTrustScore      = "UpdateTrustScore"
	MethodVerifyOrganization    = "VerifyOrganization"
	MethodUpdateGracePeriod     = "UpdateGracePeriod"
	MethodGetOrganization       = "GetOrganization"
	MethodListOrganizations     = "ListOrganizations"
	MethodIsOrganizationCreator = "IsOrganizationCreator"
	MethodGetCampaign           = "GetCampaign"
	MethodListCampaigns         = "ListCampaigns"
	MethodGetDonation           = "GetDonation"
	MethodGetGracePeriod        = "GetGracePeriod"
	MethodGetBalance            = "GetBalance"
	MethodGetInfo               = "GetInfo"
)

// FullMethod returns the wire name of method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// EscrowServer is the server side of amanat.v1.Escrow.
type EscrowServer interface {
	CreateOrganization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddCampaign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Contribute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WithdrawDonation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WithdrawFunds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateTrustScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyOrganization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateGracePeriod(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrganization(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrganizations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IsOrganizationCreator(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCampaign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCampaigns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDonation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetGracePeriod(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(EscrowServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EscrowServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EscrowServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for amanat.v1.Escrow.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EscrowServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateOrganization, EscrowServer.CreateOrganization),
		unary(MethodAddCampaign, EscrowServer.AddCampaign),
		unary(MethodContribute, EscrowServer.Contribute),
		unary(MethodWithdrawDonation, EscrowServer.WithdrawDonation),
		unary(MethodWithdrawFunds, EscrowServer.WithdrawFunds),
		unary(MethodUpdateTrustScore, EscrowServer.UpdateTrustScore),
		unary(MethodVerifyOrganization, EscrowServer.VerifyOrganization),
		unary(MethodUpdateGracePeriod, EscrowServer.UpdateGracePeriod),
		unary(MethodGetOrganization, EscrowServer.GetOrganization),
		unary(MethodListOrganizations, EscrowServer.ListOrganizations),
		unary(MethodIsOrganizationCreator, EscrowServer.IsOrganizationCreator),
		unary(MethodGetCampaign, EscrowServer.GetCampaign),
		unary(MethodListCampaigns, EscrowServer.ListCampaigns),
		unary(MethodGetDonation, EscrowServer.GetDonation),
		unary(MethodGetGracePeriod, EscrowServer.GetGracePeriod),
		unary(MethodGetBalance, EscrowServer.GetBalance),
		unary(MethodGetInfo, EscrowServer.GetInfo),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "amanat/v1/escrow.proto",
}

// RegisterEscrowServer registers srv on s.
func RegisterEscrowServer(s grpc.ServiceRegistrar, srv EscrowServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Invoke calls method on cc.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
