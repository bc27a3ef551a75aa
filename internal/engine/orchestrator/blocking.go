package orchestrator

import (
	"sync"

	"github.com/vietddude/failsafe/internal/core/domain"
)

type stageKind struct {
	stage domain.Stage
	kind  domain.ErrorKind
}

// BlockingSet holds (stage, kind) combinations severe enough to abort the
// enclosing multi-stage process after retry exhaustion.
type BlockingSet struct {
	mu     sync.RWMutex
	combos map[stageKind]bool
}

// NewBlockingSet returns the default blocking combinations.
func NewBlockingSet() *BlockingSet {
	s := &BlockingSet{combos: make(map[stageKind]bool)}
	s.Add(domain.StageDeploy, domain.KindDeploymentFailure)
	s.Add(domain.StageBuild, domain.KindBuildCompilation)
	s.Add(domain.StageDatabase, domain.KindConnectionFailure)
	return s
}

// Add marks the combination as blocking.
func (s *BlockingSet) Add(stage domain.Stage, kind domain.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.combos[stageKind{stage, kind}] = true
}

// Blocking reports whether the combination aborts the enclosing process.
func (s *BlockingSet) Blocking(stage domain.Stage, kind domain.ErrorKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.combos[stageKind{stage, kind}]
}
