package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	grpcapi "github.com/lemonberrylabs/fieldrules/pkg/api/grpc"
)

func newGRPCClient(t *testing.T) *grpcapi.Client {
	t.Helper()
	ep := os.Getenv("FIELDRULES_GRPC")
	if ep == "" {
		t.Skip("FIELDRULES_GRPC not set; skipping gRPC integration test")
	}
	conn, err := grpc.NewClient(ep, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return grpcapi.NewClient(conn)
}

func TestGRPCValidate(t *testing.T) {
	client := newGRPCClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Validate(ctx, "12345", "(>=100 & <=200) | (>=500 & <=900)")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if resp.Valid {
		t.Errorf("expected 12345 to fail")
	}
	if want := "(12345>=100&&12345<=200)||(12345>=500&&12345<=900)"; resp.Expression != want {
		t.Errorf("expression = %q, want %q", resp.Expression, want)
	}
}

func TestGRPCValidateRule(t *testing.T) {
	requireServer(t)
	client := newGRPCClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := uniqueRuleID("grpc")
	createRule(t, id, "!<0")

	resp, err := client.ValidateRule(ctx, id, "-1")
	if err != nil {
		t.Fatalf("ValidateRule: %v", err)
	}
	if resp.Valid || resp.CheckID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}

	_, err = client.ValidateRule(ctx, uniqueRuleID("missing"), "1")
	if status.Code(err) != codes.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
