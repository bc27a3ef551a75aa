// Package classify maps raw failures to the error taxonomy.
package classify

import (
	"context"
	"errors"
	"strings"

	"github.com/vietddude/failsafe/internal/core/domain"
)

// Classifier assigns an ErrorKind and Severity to a failure. Pure and
// deterministic for a given rule set; never panics.
type Classifier struct {
	stageDefaults map[domain.Stage]domain.ErrorKind
	patterns      []pattern
}

// pattern is a last-resort substring heuristic, applied only when the
// error carries no explicit tag and the stage default does not bind.
type pattern struct {
	substrings []string
	kind       domain.ErrorKind
}

// NewClassifier creates a classifier with the default rule set.
func NewClassifier() *Classifier {
	return &Classifier{
		stageDefaults: map[domain.Stage]domain.ErrorKind{
			domain.StageDependency: domain.KindDependencyResolution,
			domain.StageBuild:      domain.KindBuildCompilation,
			domain.StageTest:       domain.KindTestExecution,
			domain.StageCoverage:   domain.KindCoverageCollection,
			domain.StageQuality:    domain.KindQualityGateFailure,
			domain.StageSecurity:   domain.KindSecurityVulnerability,
			domain.StageDeploy:     domain.KindDeploymentFailure,
			domain.StageDatabase:   domain.KindConnectionFailure,
		},
		// Order matters: first match wins.
		patterns: []pattern{
			{[]string{"timeout", "timed out", "deadline exceeded"}, domain.KindTimeoutExceeded},
			{[]string{"deadlock"}, domain.KindDeadlockDetected},
			{[]string{"constraint", "duplicate key", "foreign key"}, domain.KindConstraintViolation},
			{[]string{"connection refused", "connection reset", "broken pipe"}, domain.KindConnectionFailure},
			{[]string{"network", "dns", "no route to host", "unreachable"}, domain.KindNetworkConnectivity},
			{[]string{"out of memory", "no space left", "resource exhausted", "too many open files"}, domain.KindResourceExhaustion},
			{[]string{"corrupt", "checksum", "bad archive"}, domain.KindArtifactCorruption},
			{[]string{"assertion", "assert failed", "assert error"}, domain.KindAssertionFailure},
			{[]string{"config", "missing required", "invalid flag"}, domain.KindConfigurationError},
		},
	}
}

// Classify maps err plus its execution context to a kind and severity.
func (c *Classifier) Classify(err error, execCtx *domain.ExecutionContext) (domain.ErrorKind, domain.Severity) {
	kind := c.kindOf(err, execCtx)
	return kind, c.severityOf(kind, execCtx)
}

func (c *Classifier) kindOf(err error, execCtx *domain.ExecutionContext) domain.ErrorKind {
	if err == nil {
		return domain.KindUnknown
	}

	// Explicit tags from the origin always win.
	if kind, ok := domain.KindOf(err); ok {
		return kind
	}

	// Context cancellation and deadline errors are timeouts regardless
	// of stage.
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeoutExceeded
	}

	// Heuristic layer: substring matching on the message.
	msg := strings.ToLower(err.Error())
	for _, p := range c.patterns {
		for _, s := range p.substrings {
			if strings.Contains(msg, s) {
				return p.kind
			}
		}
	}

	// Fall back to the stage default, then to environment setup for
	// stages we know nothing about.
	if execCtx != nil {
		if kind, ok := c.stageDefaults[execCtx.Stage]; ok {
			return kind
		}
		if execCtx.Stage != "" {
			return domain.KindEnvironmentSetup
		}
	}
	return domain.KindUnknown
}

func (c *Classifier) severityOf(kind domain.ErrorKind, execCtx *domain.ExecutionContext) domain.Severity {
	if kind.Critical() {
		return domain.SeverityCritical
	}

	sev := baseSeverity(kind)

	// Repeated failures escalate: anything past the second attempt is at
	// least High.
	if execCtx != nil && execCtx.RetryCount > 2 && sev < domain.SeverityHigh {
		sev = domain.SeverityHigh
	}
	return sev
}

func baseSeverity(kind domain.ErrorKind) domain.Severity {
	switch kind {
	case domain.KindArtifactCorruption, domain.KindDeadlockDetected:
		return domain.SeverityHigh
	case domain.KindBuildCompilation, domain.KindResourceExhaustion,
		domain.KindConnectionFailure, domain.KindConstraintViolation,
		domain.KindAssertionFailure, domain.KindConfigurationError:
		return domain.SeverityMedium
	case domain.KindTimeoutExceeded, domain.KindNetworkConnectivity,
		domain.KindEnvironmentSetup, domain.KindDependencyResolution,
		domain.KindTestExecution, domain.KindCoverageCollection,
		domain.KindQualityGateFailure:
		return domain.SeverityLow
	default:
		return domain.SeverityLow
	}
}
