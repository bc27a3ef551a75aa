// Package strategy holds recovery strategies and selects them per failure.
package strategy

import (
	"context"
	"time"

	"github.com/vietddude/failsafe/internal/core/domain"
)

// Action attempts to remediate a failure. It must be idempotent: under
// concurrency the engine guarantees at-most-one-in-flight per
// (strategy, resource) only on a best-effort basis.
type Action func(ctx context.Context, execCtx *domain.ExecutionContext, cause error) bool

// RecoveryStrategy is a named remediation registered at startup and
// immutable thereafter.
type RecoveryStrategy struct {
	Name        string
	Stages      domain.StageList
	Kinds       domain.KindList
	Priority    int // lower runs first
	MaxAttempts int
	Cooldown    time.Duration
	Action      Action
}

// Applicable reports whether the strategy can handle the given failure.
func (s *RecoveryStrategy) Applicable(kind domain.ErrorKind, stage domain.Stage) bool {
	return s.Stages.Contains(stage) && s.Kinds.Contains(kind)
}
