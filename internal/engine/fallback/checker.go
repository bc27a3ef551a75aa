package fallback

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HTTPChecker probes services over HTTP GET. 2xx is healthy, any response
// at all is at worst unhealthy, a transport error is offline.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTPChecker creates a checker with the given probe timeout.
func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{client: &http.Client{Timeout: timeout}}
}

// Check probes the service's check URL.
func (c *HTTPChecker) Check(ctx context.Context, svc ServiceConfig) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.CheckURL, nil)
	if err != nil {
		return StatusOffline, fmt.Errorf("invalid check URL for %s: %w", svc.Name, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return StatusOffline, fmt.Errorf("probe failed for %s: %w", svc.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, fmt.Errorf("probe for %s returned %d", svc.Name, resp.StatusCode)
}

// GRPCChecker probes services implementing the standard gRPC health
// protocol (grpc.health.v1).
type GRPCChecker struct{}

// NewGRPCChecker creates a gRPC health checker.
func NewGRPCChecker() *GRPCChecker {
	return &GRPCChecker{}
}

// Check dials the target and issues a health check RPC.
func (c *GRPCChecker) Check(ctx context.Context, svc ServiceConfig) (Status, error) {
	target := strings.TrimPrefix(svc.CheckURL, "grpc://")

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return StatusOffline, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return StatusOffline, fmt.Errorf("health rpc for %s: %w", svc.Name, err)
	}

	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		return StatusHealthy, nil
	}
	return StatusUnhealthy, fmt.Errorf("service %s reported %s", svc.Name, resp.GetStatus())
}

// SchemeChecker routes each probe to the right protocol checker.
type SchemeChecker struct {
	http Checker
	grpc Checker
}

// NewSchemeChecker creates the default protocol-routing checker.
func NewSchemeChecker(timeout time.Duration) *SchemeChecker {
	return &SchemeChecker{
		http: NewHTTPChecker(timeout),
		grpc: NewGRPCChecker(),
	}
}

// Check dispatches on the URL scheme.
func (c *SchemeChecker) Check(ctx context.Context, svc ServiceConfig) (Status, error) {
	if strings.HasPrefix(svc.CheckURL, "grpc://") {
		return c.grpc.Check(ctx, svc)
	}
	return c.http.Check(ctx, svc)
}
