package domain

// ErrorKind classifies the nature of a failure for routing to recovery strategies.
type ErrorKind string

const (
	KindDependencyResolution  ErrorKind = "dependency_resolution"
	KindBuildCompilation      ErrorKind = "build_compilation"
	KindTestExecution         ErrorKind = "test_execution"
	KindCoverageCollection    ErrorKind = "coverage_collection"
	KindQualityGateFailure    ErrorKind = "quality_gate_failure"
	KindSecurityVulnerability ErrorKind = "security_vulnerability"
	KindDeploymentFailure     ErrorKind = "deployment_failure"
	KindEnvironmentSetup      ErrorKind = "environment_setup"
	KindResourceExhaustion    ErrorKind = "resource_exhaustion"
	KindNetworkConnectivity   ErrorKind = "network_connectivity"
	KindArtifactCorruption    ErrorKind = "artifact_corruption"
	KindTimeoutExceeded       ErrorKind = "timeout_exceeded"
	KindConnectionFailure     ErrorKind = "connection_failure"
	KindDeadlockDetected      ErrorKind = "deadlock_detected"
	KindConstraintViolation   ErrorKind = "constraint_violation"
	KindAssertionFailure      ErrorKind = "assertion_failure"
	KindConfigurationError    ErrorKind = "configuration_error"
	KindUnknown               ErrorKind = "unknown"
)

// Severity indicates how serious a classified failure is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// nonRecoverable lists kinds that must never enter the recovery loop.
// The original error propagates on the first attempt, tagged with its
// classification.
var nonRecoverable = map[ErrorKind]bool{
	KindSecurityVulnerability: true,
	KindArtifactCorruption:    true,
	KindAssertionFailure:      true,
	KindConfigurationError:    true,
}

// alwaysCritical lists kinds whose severity is Critical regardless of
// attempt count or stage.
var alwaysCritical = map[ErrorKind]bool{
	KindSecurityVulnerability: true,
	KindDeploymentFailure:     true,
}

// Recoverable reports whether failures of this kind may be handled by
// recovery strategies.
func (k ErrorKind) Recoverable() bool {
	return !nonRecoverable[k]
}

// Critical reports whether this kind is unconditionally critical.
func (k ErrorKind) Critical() bool {
	return alwaysCritical[k]
}
