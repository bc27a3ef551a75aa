package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vietddude/failsafe/internal/core/domain"
)

func TestClassify_ExplicitTagWins(t *testing.T) {
	c := NewClassifier()
	execCtx := &domain.ExecutionContext{Stage: domain.StageBuild}

	// Message says timeout, tag says deadlock. Tag must win.
	err := domain.Tag(domain.KindDeadlockDetected, errors.New("operation timed out"))

	kind, _ := c.Classify(err, execCtx)
	if kind != domain.KindDeadlockDetected {
		t.Errorf("expected deadlock_detected, got %s", kind)
	}
}

func TestClassify_Patterns(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		msg  string
		want domain.ErrorKind
	}{
		{"dial tcp: connection refused", domain.KindConnectionFailure},
		{"request timed out after 30s", domain.KindTimeoutExceeded},
		{"deadlock detected on table locks", domain.KindDeadlockDetected},
		{"duplicate key value violates unique constraint", domain.KindConstraintViolation},
		{"dns lookup failed", domain.KindNetworkConnectivity},
		{"no space left on device", domain.KindResourceExhaustion},
		{"archive corrupt: checksum mismatch", domain.KindArtifactCorruption},
		{"assertion failed: want 5, got 4", domain.KindAssertionFailure},
	}

	for _, tc := range cases {
		kind, _ := c.Classify(errors.New(tc.msg), nil)
		if kind != tc.want {
			t.Errorf("%q: expected %s, got %s", tc.msg, tc.want, kind)
		}
	}
}

func TestClassify_UnexpectedEOFIsNotAssertion(t *testing.T) {
	c := NewClassifier()

	// "unexpected EOF" is a truncated-read error; it must fall through to
	// the stage default, not the non-recoverable assertion kind.
	kind, _ := c.Classify(errors.New("unexpected EOF"), &domain.ExecutionContext{Stage: domain.StageTest})
	if kind == domain.KindAssertionFailure {
		t.Fatal("truncated-read error misclassified as assertion failure")
	}
	if kind != domain.KindTestExecution {
		t.Errorf("expected test_execution, got %s", kind)
	}
	if !kind.Recoverable() {
		t.Errorf("kind %s should be recoverable", kind)
	}
}

func TestClassify_StageDefaults(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		stage domain.Stage
		want  domain.ErrorKind
	}{
		{domain.StageBuild, domain.KindBuildCompilation},
		{domain.StageTest, domain.KindTestExecution},
		{domain.StageDeploy, domain.KindDeploymentFailure},
		{domain.StageSecurity, domain.KindSecurityVulnerability},
		{domain.Stage("warehouse"), domain.KindEnvironmentSetup},
	}

	for _, tc := range cases {
		// Message with no recognizable content.
		kind, _ := c.Classify(errors.New("exit status 1"), &domain.ExecutionContext{Stage: tc.stage})
		if kind != tc.want {
			t.Errorf("stage %s: expected %s, got %s", tc.stage, tc.want, kind)
		}
	}
}

func TestClassify_NoContext(t *testing.T) {
	c := NewClassifier()
	kind, sev := c.Classify(errors.New("exit status 1"), nil)
	if kind != domain.KindUnknown {
		t.Errorf("expected unknown, got %s", kind)
	}
	if sev != domain.SeverityLow {
		t.Errorf("expected low severity, got %s", sev)
	}
}

func TestClassify_DeadlineExceeded(t *testing.T) {
	c := NewClassifier()
	err := fmt.Errorf("attempt failed: %w", context.DeadlineExceeded)
	kind, _ := c.Classify(err, &domain.ExecutionContext{Stage: domain.StageBuild})
	if kind != domain.KindTimeoutExceeded {
		t.Errorf("expected timeout_exceeded, got %s", kind)
	}
}

func TestClassify_SeverityEscalation(t *testing.T) {
	c := NewClassifier()
	err := errors.New("request timed out")

	_, sev := c.Classify(err, &domain.ExecutionContext{RetryCount: 1})
	if sev != domain.SeverityLow {
		t.Errorf("attempt 1: expected low, got %s", sev)
	}

	_, sev = c.Classify(err, &domain.ExecutionContext{RetryCount: 3})
	if sev != domain.SeverityHigh {
		t.Errorf("attempt 3: expected high, got %s", sev)
	}
}

func TestClassify_AlwaysCritical(t *testing.T) {
	c := NewClassifier()

	_, sev := c.Classify(errors.New("CVE-2024-1234 found"), &domain.ExecutionContext{Stage: domain.StageSecurity})
	if sev != domain.SeverityCritical {
		t.Errorf("security: expected critical, got %s", sev)
	}

	_, sev = c.Classify(errors.New("rollout failed"), &domain.ExecutionContext{Stage: domain.StageDeploy})
	if sev != domain.SeverityCritical {
		t.Errorf("deploy: expected critical, got %s", sev)
	}
}

func TestClassify_NilError(t *testing.T) {
	c := NewClassifier()
	kind, _ := c.Classify(nil, &domain.ExecutionContext{Stage: domain.StageBuild})
	if kind != domain.KindUnknown {
		t.Errorf("expected unknown for nil error, got %s", kind)
	}
}
