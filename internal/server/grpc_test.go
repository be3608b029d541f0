package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type recordingHealth struct {
	mu     sync.Mutex
	status map[string]healthpb.HealthCheckResponse_ServingStatus
}

func (r *recordingHealth) SetServingStatus(service string, s healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[service] = s
}

func (r *recordingHealth) get(service string) healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[service]
}

type toggleChecker struct {
	mu  sync.Mutex
	err error
}

func (c *toggleChecker) Name() string { return "store" }
func (c *toggleChecker) CheckReady(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
func (c *toggleChecker) set(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func TestWatchReadiness(t *testing.T) {
	hs := &recordingHealth{status: map[string]healthpb.HealthCheckResponse_ServingStatus{}}
	chk := &toggleChecker{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchReadiness(ctx, hs, 10*time.Millisecond, nil, chk)
	}()

	require.Eventually(t, func() bool {
		return hs.get("") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hs.get(ServiceName))

	chk.set(errors.New("connection refused"))
	require.Eventually(t, func() bool {
		return hs.get(ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestNewGRPCServer_StartsNotServing(t *testing.T) {
	gs, hs := NewGRPCServer()
	defer gs.Stop()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
