package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/escrow/remote"
	"amanat.org/internal/store/memory"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *GRPCServer, authority *auth.Authority) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryAuthInterceptor(authority)))
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	})
	return conn
}

func TestGRPCServer_InfoAndHealth(t *testing.T) {
	srv := NewGRPCServer(escrow.NewEngine(memory.New()), ReadyProbe{}, "1.2.3")
	conn := startBufGRPC(t, srv, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	name, version, err := remote.New(conn).Info(ctx)
	if err != nil {
		t.Fatalf("GetInfo error: %v", err)
	}
	if name != serviceName || version != "1.2.3" {
		t.Fatalf("unexpected info response: %s %s", name, version)
	}

	healthResp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if healthResp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %s", healthResp.GetStatus())
	}
}

type failingReadiness struct{}

func (f failingReadiness) Check(context.Context) error { return errors.New("boom") }

func TestGRPCServer_HealthFailure(t *testing.T) {
	srv := NewGRPCServer(escrow.NewEngine(memory.New()), failingReadiness{}, "1.0.0")
	conn := startBufGRPC(t, srv, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err == nil {
		t.Fatal("expected health check error")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unavailable {
		t.Fatalf("unexpected status: %v", err)
	}
}

func TestGRPCServer_EscrowFlowOverRemoteClient(t *testing.T) {
	authority, err := auth.New("grpc-secret")
	require.NoError(t, err)
	clock := &testClock{now: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine := escrow.NewEngine(memory.New(memory.WithGracePeriod(time.Hour)),
		escrow.WithClock(clock), escrow.WithAdministrators("admin"))
	conn := startBufGRPC(t, NewGRPCServer(engine, nil, "test"), authority)

	token := func(id string) string {
		tok, _, err := authority.GenerateToken(id, time.Hour)
		require.NoError(t, err)
		return tok
	}
	creator := remote.New(conn).WithToken(token("creator"))
	donor := remote.New(conn).WithToken(token("donor"))
	anon := remote.New(conn)
	ctx := context.Background()

	org, err := creator.CreateOrganization(ctx, "Orchard", escrow.Hash{7})
	require.NoError(t, err)
	require.Equal(t, escrow.OrganizationID("Orchard", escrow.Hash{7}), org.ID)

	_, err = anon.CreateOrganization(ctx, "Anon", escrow.Hash{})
	require.ErrorIs(t, err, escrow.ErrUnauthenticated)

	timeline := clock.Now().Add(time.Hour).Unix()
	c, err := creator.AddCampaign(ctx, org.ID, "Trees", escrow.Hash{8}, 100, timeline)
	require.NoError(t, err)

	_, err = donor.AddCampaign(ctx, org.ID, "Other", escrow.Hash{}, 1, timeline)
	require.ErrorIs(t, err, escrow.ErrNotOrganizationCreator)

	res, err := donor.Contribute(ctx, org.ID, c.ID, 40)
	require.NoError(t, err)
	require.EqualValues(t, 40, res.Outstanding)

	amount, err := anon.Donation(ctx, c.ID, "donor")
	require.NoError(t, err)
	require.EqualValues(t, 40, amount)

	_, err = creator.WithdrawFunds(ctx, org.ID, c.ID)
	require.ErrorIs(t, err, escrow.ErrCampaignOngoing)

	clock.Advance(2 * time.Hour)
	st, err := anon.CampaignStatus(ctx, org.ID, c.ID)
	require.NoError(t, err)
	require.Equal(t, escrow.StateGraceExpired, st.State)

	payout, err := creator.WithdrawFunds(ctx, org.ID, c.ID)
	require.NoError(t, err)
	require.EqualValues(t, 40, payout.Amount)

	_, err = donor.WithdrawDonation(ctx, org.ID, c.ID)
	require.ErrorIs(t, err, escrow.ErrNoDonationsMade)

	bal, err := anon.Balance(ctx, "creator")
	require.NoError(t, err)
	require.EqualValues(t, 40, bal)

	is, err := anon.IsOrganizationCreator(ctx, org.ID, "creator")
	require.NoError(t, err)
	require.True(t, is)

	orgs, err := anon.Organizations(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, orgs, 1)

	list, err := anon.Campaigns(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestGRPCServer_AdminAndInvalidToken(t *testing.T) {
	authority, err := auth.New("grpc-secret")
	require.NoError(t, err)
	engine := escrow.NewEngine(memory.New(), escrow.WithAdministrators("admin"))
	conn := startBufGRPC(t, NewGRPCServer(engine, nil, "test"), authority)
	ctx := context.Background()

	tok, _, err := authority.GenerateToken("admin", time.Hour)
	require.NoError(t, err)
	admin := remote.New(conn).WithToken(tok)

	d, err := admin.UpdateGracePeriod(ctx, 120)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, d)

	got, err := remote.New(conn).GracePeriod(ctx)
	require.NoError(t, err)
	require.Equal(t, 2*time.Minute, got)

	_, err = remote.New(conn).WithToken("garbage").UpdateGracePeriod(ctx, 1)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = admin.Organization(ctx, escrow.ID{1})
	require.ErrorIs(t, err, escrow.ErrNotFound)
}
