package invocation

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
)

// SuiteContext carries the state shared by every invocation built during a suite.
// Its counter is the only cross-call mutable state and only ever increases.
type SuiteContext struct {
	artifactRoot string
	counter      atomic.Uint64
}

// NewSuiteContext creates a context whose artifacts live under artifactRoot.
// An empty root means the current working directory.
func NewSuiteContext(artifactRoot string) *SuiteContext {
	if artifactRoot == "" {
		artifactRoot = "."
	}
	return &SuiteContext{artifactRoot: artifactRoot}
}

// ArtifactRoot returns the root directory artifacts are written under
func (sc *SuiteContext) ArtifactRoot() string {
	return sc.artifactRoot
}

// CacheRoot returns the fixed artifact cache directory
func (sc *SuiteContext) CacheRoot() string {
	return filepath.Join(sc.artifactRoot, ArtifactCacheDir)
}

// Next returns the next counter value, starting at 1. Safe for concurrent use.
func (sc *SuiteContext) Next() uint64 {
	return sc.counter.Add(1)
}

// Count returns how many values have been handed out
func (sc *SuiteContext) Count() uint64 {
	return sc.counter.Load()
}

// CachePath returns the embedded-backend cache directory for counter value n
func (sc *SuiteContext) CachePath(n uint64) string {
	return filepath.Join(sc.CacheRoot(), fmt.Sprintf("run-%06d", n))
}
