package domain

import "time"

// Recognized metadata keys. Unknown keys are carried but ignored by the
// engine.
const (
	MetaOwner    = "owner"    // team or person responsible for the operation
	MetaPriority = "priority" // scheduling hint for external consumers
	MetaTrigger  = "trigger"  // what started the operation (cron, push, manual)
)

// ExecutionContext describes a single logical operation being driven
// through the engine. It is owned by the caller; only the orchestrator
// mutates it (retry count, timeout extension) during execution.
type ExecutionContext struct {
	OperationID string
	Resource    string // logical resource the operation acts on (breaker key)
	Stage       Stage
	Timeout     time.Duration
	RetryCount  int
	MaxRetries  int
	Metadata    map[string]string
}

// Meta returns the metadata value for key, or "" when absent.
func (c *ExecutionContext) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Snapshot returns a copy safe to embed in an ErrorEvent after the
// orchestrator has moved on.
func (c *ExecutionContext) Snapshot() ExecutionContext {
	cp := *c
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
