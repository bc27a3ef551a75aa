package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/vietddude/failsafe/internal/core/domain"
	"github.com/vietddude/failsafe/internal/engine/breaker"
	"github.com/vietddude/failsafe/internal/engine/classify"
	"github.com/vietddude/failsafe/internal/engine/events"
	"github.com/vietddude/failsafe/internal/engine/orchestrator"
	"github.com/vietddude/failsafe/internal/engine/strategy"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ctx := context.Background()

	// 1. Build the engine pieces
	bus := events.NewBus()
	defer bus.Close()

	classifier := classify.NewClassifier()
	breakers := breaker.NewRegistry(breaker.Config{Threshold: 5, OpenTimeout: 30 * time.Second})
	strategies := strategy.NewRegistry(strategy.NewMemoryCooldowns())

	// 2. Register a recovery strategy for connection failures
	strategies.Register(&strategy.RecoveryStrategy{
		Name:     "reconnect",
		Kinds:    domain.KindList{domain.KindConnectionFailure, domain.KindNetworkConnectivity},
		Priority: 10,
		Cooldown: 5 * time.Second,
		Action: func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool {
			fmt.Printf("🔌 Reconnecting %s after: %v\n", execCtx.Resource, cause)
			return true
		},
	})

	// 3. Watch engine events
	recovered := bus.Subscribe(events.TypeRecovered)
	go func() {
		for e := range recovered {
			fmt.Printf("✅ Recovered: %+v\n", e)
		}
	}()

	orch := orchestrator.New(
		orchestrator.DefaultConfig(),
		classifier,
		strategies,
		breakers,
		nil,
		bus,
		nil,
	)

	// 4. Run a flaky operation: fails twice, then succeeds
	calls := 0
	result, err := orch.Execute(ctx, &domain.ExecutionContext{
		Resource: "payments-db",
		Stage:    domain.StageDatabase,
	}, func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, domain.Tag(domain.KindConnectionFailure,
				errors.New("connection refused"))
		}
		return fmt.Sprintf("done after %d attempts", calls), nil
	})
	if err != nil {
		log.Fatalf("Execute failed: %v", err)
	}

	fmt.Printf("Result: %v\n", result)

	// 5. Show the per-resource breaker state
	fmt.Printf("Breaker state for payments-db: %v\n", breakers.Get("payments-db").State())
}
