package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/dispatch"
	"github.com/vietddude/relay/internal/infra/storage/memory"
	"github.com/vietddude/relay/internal/ingress/event"
	"github.com/vietddude/relay/internal/resilience"
	"github.com/vietddude/relay/internal/sample"
)

func printEnvelope(label string, env any) {
	raw, _ := json.MarshalIndent(env, "", "  ")
	fmt.Printf("%s:\n%s\n\n", label, raw)
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ctx := context.Background()

	// 1. Build the dispatch pipeline over in-memory storage
	policies := resilience.NewRegistry(resilience.Config{
		Breaker:  resilience.BreakerConfig{MinRequests: 3, FailureThreshold: 0.5, HalfOpenAfter: 2 * time.Second},
		Bulkhead: resilience.BulkheadConfig{MaxConcurrent: 2, MaxQueue: 2},
	})
	registry := dispatch.NewRegistry()
	router := dispatch.NewRouter(dispatch.Config{DefaultTimeout: 5 * time.Second}, registry, policies)

	// 2. Register the sample service actions
	svc := sample.NewService(memory.NewStore())
	if err := svc.Register(registry); err != nil {
		log.Fatalf("register failed: %v", err)
	}
	fmt.Println("Registered actions:", registry.Keys())
	fmt.Println()

	// 3. Drive the router directly
	adapter, err := event.NewAdapter(event.Config{}, router)
	if err != nil {
		log.Fatalf("adapter failed: %v", err)
	}

	fmt.Println("=== Event Shape Detection ===")

	// HTTP-shaped event, as an API gateway would deliver it
	httpEvent := []byte(`{
		"httpMethod": "POST",
		"path": "/sample",
		"body": "{\"name\": \"Ada Lovelace\", \"email\": \"ada@example.com\"}"
	}`)
	env := adapter.HandleEvent(ctx, httpEvent)
	printEnvelope("POST /sample", env)

	// Extract the generated id for the follow-up calls
	var id string
	if sm, ok := env.Data.(*domain.Sample); ok {
		id = sm.ID
	}

	// Direct invocation shape
	directEvent := fmt.Appendf(nil, `{"service": "sample", "action": "get", "params": {"id": %q}}`, id)
	printEnvelope("direct sample.get", adapter.HandleEvent(ctx, directEvent))

	// Notification shape
	snsEvent := []byte(`{
		"Records": [{
			"EventSource": "aws:sns",
			"Sns": {"Subject": "greeting", "Message": "{\"text\": \"hello\"}"}
		}]
	}`)
	printEnvelope("notification", adapter.HandleEvent(ctx, snsEvent))

	// 4. Show the error taxonomy on a miss
	missEvent := []byte(`{"service": "sample", "action": "get", "params": {"id": "no-such-id"}}`)
	printEnvelope("sample.get miss", adapter.HandleEvent(ctx, missEvent))

	// 5. Trip the breaker with repeated failures on one action
	fmt.Println("=== Circuit Breaker ===")
	for i := 0; i < 6; i++ {
		bad := []byte(`{"service": "sample", "action": "get", "params": {"id": "missing"}}`)
		env := adapter.HandleEvent(ctx, bad)
		fmt.Printf("call %d: %s\n", i+1, env.Error.Code)
	}
	fmt.Println()

	// 6. Dump the policy snapshot
	fmt.Println("=== Policy Snapshot ===")
	snap, _ := json.MarshalIndent(policies.SnapshotAll(), "", "  ")
	fmt.Println(string(snap))
}
