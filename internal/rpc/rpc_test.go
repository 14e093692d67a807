package rpc

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"amanat.org/internal/escrow"
)

func TestStatusRoundTrip(t *testing.T) {
	cases := map[error]codes.Code{
		escrow.ErrNotFound:                       codes.NotFound,
		escrow.ErrAlreadyExists:                  codes.AlreadyExists,
		escrow.ErrNotOrganizationCreator:         codes.PermissionDenied,
		escrow.ErrUnauthenticated:                codes.Unauthenticated,
		escrow.ErrCampaignOngoing:                codes.FailedPrecondition,
		escrow.ErrCannotWithdrawOutOfGracePeriod: codes.FailedPrecondition,
		escrow.ErrNoDonationsMade:                codes.InvalidArgument,
		escrow.ErrDirectTransferRejected:         codes.Unimplemented,
	}
	for sentinel, code := range cases {
		st := ToStatus(fmt.Errorf("wrapped: %w", sentinel))
		require.Equal(t, code, status.Code(st), sentinel.Error())
		require.ErrorIs(t, FromStatus(st), sentinel)
	}
}

func TestUnknownErrorsStayInternal(t *testing.T) {
	st := ToStatus(errors.New("disk on fire"))
	require.Equal(t, codes.Internal, status.Code(st))
	require.Equal(t, st, FromStatus(st))

	passthrough := status.Error(codes.Unavailable, "down")
	require.Equal(t, passthrough, ToStatus(passthrough))
}

func TestCampaignStatusEncoding(t *testing.T) {
	st := escrow.CampaignStatus{
		Campaign: escrow.Campaign{
			ID:             escrow.ID{1},
			OrganizationID: escrow.ID{2},
			Index:          4,
			Name:           "campaign",
			Description:    escrow.Hash{3},
			TargetAmount:   math.MaxInt64,
			TotalRaised:    math.MaxInt64 - 1,
			Timeline:       1893456000,
			Epoch:          2,
			CreatedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		State:       escrow.StateTimelineExpired,
		Pool:        math.MaxInt64 - 1,
		GraceEndsAt: math.MaxInt64,
		AsOf:        time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	got, err := DecodeStatus(EncodeStatus(st))
	require.NoError(t, err)
	require.Equal(t, st, got)
}

func TestReaderReportsMalformedFields(t *testing.T) {
	msg := NewBuilder().Str("amount", "ten").Str("organization_id", "0x12").Build()
	r := Fields(msg)
	_ = r.Int("amount")
	_ = r.ID("organization_id")
	require.ErrorContains(t, r.Err(), "field amount")

	num, err := structpb.NewStruct(map[string]any{"amount": 5.0, "half": 1.5})
	require.NoError(t, err)
	r = Fields(num)
	require.Equal(t, int64(5), r.Int("amount"))
	require.NoError(t, r.Err())
	_ = r.Int("half")
	require.Error(t, r.Err())
	require.Equal(t, int64(0), Fields(nil).Int("missing"))
}
