package sat

import (
	"context"
	"fmt"
)

type Status int

const (
	Initialized Status = iota
	Searching
	Feasible
	Infeasible
	Timeout
)

var statusNames = map[Status]string{
	Initialized: "INITIALIZED",
	Searching:   "SEARCHING",
	Feasible:    "FEASIBLE",
	Infeasible:  "INFEASIBLE",
	Timeout:     "TIMEOUT",
}

func (status Status) String() string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(status))
}

// Terminal reports whether the search has finished in this status
func (status Status) Terminal() bool {
	return status == Feasible || status == Infeasible || status == Timeout
}

type Result struct {
	Status     Status
	Solution   SATSolution // Set only when Status is Feasible
	Nodes      uint64      // Decisions taken
	Backtracks uint64
}

type SATSolver interface {
	// Solve searches for an assignment satisfying every constraint of the problem until ctx is done.
	// Infeasible and Timeout are valid outcomes where error shall be nil; error is reserved for malformed problems
	Solve(ctx context.Context, problem *Problem) (Result, error)
}
