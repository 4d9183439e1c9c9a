package grpcapi

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fairyhunter13/verisure-ledger-simulator/internal/auth"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/model"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/obs"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/store"
	"github.com/fairyhunter13/verisure-ledger-simulator/internal/verify"
)

func dial(t *testing.T) (*grpc.ClientConn, *store.Store) {
	t.Helper()
	obs.InitLogger()
	st := store.New(nil, auth.NewOwnerAuthorizer("admin"))
	if err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv, _ := NewServer(NewLedgerQueryServer(st, verify.New(st, nil)))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, st
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, req any) (*structpb.Struct, error) {
	t.Helper()
	out := &structpb.Struct{}
	err := conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, req, out)
	return out, err
}

func TestCheckProduct(t *testing.T) {
	conn, st := dial(t)
	admin := model.Identity{Username: "admin", Role: model.RoleAdmin}
	p, _, err := st.Add(context.Background(), admin, 101, "Widget")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.MarkFake(context.Background(), admin, 101); err != nil {
		t.Fatal(err)
	}

	req, _ := structpb.NewStruct(map[string]any{"id": 101})
	resp, err := invoke(t, conn, "CheckProduct", req)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	f := resp.GetFields()
	if f["name"].GetStringValue() != "Widget" || !f["isFake"].GetBoolValue() || f["verdict"].GetStringValue() != "counterfeit" {
		t.Fatalf("unexpected response: %v", resp)
	}

	req, _ = structpb.NewStruct(map[string]any{"qr": p.QRHash})
	resp, err = invoke(t, conn, "CheckProduct", req)
	if err != nil || resp.GetFields()["id"].GetNumberValue() != 101 {
		t.Fatalf("check by qr: %v %v", resp, err)
	}
}

func TestCheckProductErrorCodes(t *testing.T) {
	conn, _ := dial(t)
	cases := []struct {
		req  map[string]any
		code codes.Code
	}{
		{map[string]any{"id": 404}, codes.NotFound},
		{map[string]any{"id": "abc"}, codes.InvalidArgument},
		{map[string]any{"id": 1.5}, codes.InvalidArgument},
		{map[string]any{}, codes.InvalidArgument},
	}
	for _, c := range cases {
		req, _ := structpb.NewStruct(c.req)
		_, err := invoke(t, conn, "CheckProduct", req)
		if status.Code(err) != c.code {
			t.Fatalf("%v: expected %s, got %v", c.req, c.code, err)
		}
	}
}

func TestListProductsAndStats(t *testing.T) {
	conn, st := dial(t)
	admin := model.Identity{Username: "admin"}
	for _, id := range []int64{3, 1, 2} {
		if _, _, err := st.Add(context.Background(), admin, id, "P"); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.MarkFake(context.Background(), admin, 1); err != nil {
		t.Fatal(err)
	}
	resp, err := invoke(t, conn, "ListProducts", &emptypb.Empty{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	items := resp.GetFields()["products"].GetListValue().GetValues()
	if len(items) != 3 || items[0].GetStructValue().GetFields()["id"].GetNumberValue() != 3 {
		t.Fatalf("expected insertion order, got %v", resp)
	}
	resp, err = invoke(t, conn, "GetStats", &emptypb.Empty{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	f := resp.GetFields()
	if f["total"].GetNumberValue() != 3 || f["fake"].GetNumberValue() != 1 || f["genuine"].GetNumberValue() != 2 {
		t.Fatalf("unexpected stats: %v", resp)
	}
}

func TestHealthServing(t *testing.T) {
	conn, _ := dial(t)
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}
