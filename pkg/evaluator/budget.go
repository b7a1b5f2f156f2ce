package evaluator

import "time"

// DefaultMaxDepth bounds procedure and macro nesting when Limits.MaxDepth
// is zero.
const DefaultMaxDepth = 1000

// Limits holds the resource limits for a program execution.
// A zero MaxSteps or Timeout means unlimited.
type Limits struct {
	MaxSteps int64
	MaxDepth int
	Timeout  time.Duration
}

// BudgetTracker tracks resource consumption during execution.
type BudgetTracker struct {
	Steps int64
	Depth int
}

func (l Limits) maxDepth() int {
	if l.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return l.MaxDepth
}
