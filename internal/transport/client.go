package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Dial connects to an engine's control port.
func Dial(addr string) (*grpc.ClientConn, healthpb.HealthClient, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return cc, healthpb.NewHealthClient(cc), nil
}

// PipelineServing reports whether the engine at the other end of hc is
// currently running its pipeline.
func PipelineServing(ctx context.Context, hc healthpb.HealthClient) (bool, error) {
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: PipelineService})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
