package domain

// Stage identifies the logical phase an operation belongs to. The set is
// open: callers may introduce their own stages, the constants below cover
// the pipeline phases the default classifier knows about.
type Stage string

const (
	StageDependency Stage = "dependency"
	StageBuild      Stage = "build"
	StageTest       Stage = "test"
	StageCoverage   Stage = "coverage"
	StageQuality    Stage = "quality"
	StageSecurity   Stage = "security"
	StageDeploy     Stage = "deploy"
	StageDatabase   Stage = "database"
	StageExternal   Stage = "external"
)

// StageList is a helper for matching a stage against a strategy's
// applicable stages. An empty list matches every stage.
type StageList []Stage

// Contains reports whether the list matches the given stage.
func (l StageList) Contains(stage Stage) bool {
	if len(l) == 0 {
		return true
	}
	for _, s := range l {
		if s == stage {
			return true
		}
	}
	return false
}

// KindList is a helper for matching an error kind against a strategy's
// applicable kinds. An empty list matches every kind.
type KindList []ErrorKind

// Contains reports whether the list matches the given kind.
func (l KindList) Contains(kind ErrorKind) bool {
	if len(l) == 0 {
		return true
	}
	for _, k := range l {
		if k == kind {
			return true
		}
	}
	return false
}
