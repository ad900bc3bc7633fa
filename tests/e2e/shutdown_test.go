package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/control"
	"github.com/vietddude/relay/internal/core/config"
)

func TestGracefulShutdown(t *testing.T) {
	// Memory-backed config with no external dependencies, enough to start
	// every in-process component.
	cfg := &config.AppConfig{}
	cfg.HTTP.Port = 0
	cfg.Admin.Port = 0

	relay, err := control.NewRelay(cfg)
	if err != nil {
		t.Fatalf("Failed to create relay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let it run for a bit
	time.Sleep(200 * time.Millisecond)

	// Trigger shutdown
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() {
		done <- relay.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Stop did not return within 10s")
	}
}
