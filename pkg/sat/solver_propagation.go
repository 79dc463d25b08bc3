package sat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultCheckInterval is the number of decisions between two deadline checks
const DefaultCheckInterval uint64 = 256

const (
	unassigned int8 = iota - 1
	falseValue
	trueValue
)

type propagationSolver struct {
	checkInterval uint64
	logger        *zap.Logger
}

// NewPropagationSolver returns an in-process solver performing propagation-guided backtracking.
// Decisions always pick the open equality constraint with the fewest free variables (lowest index on ties)
// and try its lowest free variable as true first, so equal problems yield equal solutions
func NewPropagationSolver(checkInterval uint64, logger *zap.Logger) SATSolver {
	if checkInterval == 0 {
		checkInterval = DefaultCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &propagationSolver{
		checkInterval: checkInterval,
		logger:        logger,
	}
}

func (solver *propagationSolver) Solve(ctx context.Context, problem *Problem) (Result, error) {
	if err := problem.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid problem: %w", err)
	}

	deadline, hasDeadline := ctx.Deadline()
	expired := func() bool {
		// The deadline is compared directly since the context's timer may not have fired yet
		return ctx.Err() != nil || (hasDeadline && !time.Now().Before(deadline))
	}

	if expired() {
		solver.logger.Debug("budget exhausted before search", zap.Stringer("status", Timeout))
		return Result{Status: Timeout}, nil
	}

	state := newSearchState(problem)
	solver.logger.Debug("search started",
		zap.Stringer("status", Searching),
		zap.Uint64("variables", problem.Variables),
		zap.Int("constraints", len(problem.Constraints)),
	)

	status := solver.search(state, expired)
	result := Result{
		Status:     status,
		Nodes:      state.nodes,
		Backtracks: state.backtracks,
	}
	if status == Feasible {
		result.Solution = state.solution()
		if !problem.Satisfies(result.Solution) {
			return Result{}, fmt.Errorf("search produced an assignment violating the problem after %d nodes", state.nodes)
		}
	}

	solver.logger.Debug("search finished",
		zap.Stringer("status", status),
		zap.Uint64("nodes", result.Nodes),
		zap.Uint64("backtracks", result.Backtracks),
	)
	return result, nil
}

type decision struct {
	variable uint64
	trail    int // Trail length before the decision was applied
	flipped  bool
}

func (solver *propagationSolver) search(state *searchState, expired func() bool) Status {
	//** Root propagation
	for index := range state.problem.Constraints {
		state.enqueue(index)
	}
	if !state.propagate() {
		return Infeasible
	}

	stack := make([]decision, 0)
	for {
		if state.nodes%solver.checkInterval == 0 && expired() {
			return Timeout
		}

		variable := state.selectVariable()
		if variable == 0 { // Every variable is determined
			return Feasible
		}

		//** Decide
		state.nodes++
		stack = append(stack, decision{variable: variable, trail: len(state.trail)})
		state.assign(variable, trueValue)
		if state.propagate() {
			continue
		}

		//** Backtrack
		for {
			if len(stack) == 0 {
				return Infeasible
			}

			top := &stack[len(stack)-1]
			state.undo(top.trail)
			if !top.flipped {
				top.flipped = true
				state.backtracks++
				state.assign(top.variable, falseValue)
				if state.propagate() {
					break
				}
				continue // Both values failed, the next iteration pops this decision
			}
			stack = stack[:len(stack)-1]
		}
	}
}

type occurrence struct {
	constraint  int
	coefficient uint64
}

type searchState struct {
	problem     *Problem
	values      []int8         // Indexed by variable, position 0 is unused
	occurrences [][]occurrence // Constraints each variable takes part in
	trueWeight  []uint64       // Per constraint, Σ coefficient of true variables
	freeWeight  []uint64       // Per constraint, Σ coefficient of unassigned variables
	freeCount   []int          // Per constraint, number of unassigned variables
	exactly     []int          // Indices of equality constraints, in problem order
	trail       []uint64
	queue       []int
	queued      []bool

	nodes, backtracks uint64
}

func newSearchState(problem *Problem) *searchState {
	constraints := len(problem.Constraints)
	state := &searchState{
		problem:     problem,
		values:      make([]int8, problem.Variables+1),
		occurrences: make([][]occurrence, problem.Variables+1),
		trueWeight:  make([]uint64, constraints),
		freeWeight:  make([]uint64, constraints),
		freeCount:   make([]int, constraints),
		exactly:     make([]int, 0),
		trail:       make([]uint64, 0, problem.Variables),
		queue:       make([]int, 0, constraints),
		queued:      make([]bool, constraints),
	}

	for variable := range state.values {
		state.values[variable] = unassigned
	}

	for index, constraint := range problem.Constraints {
		for _, term := range constraint.Terms {
			state.occurrences[term.Variable] = append(state.occurrences[term.Variable], occurrence{index, term.Coefficient})
			state.freeWeight[index] += term.Coefficient
			state.freeCount[index]++
		}
		if constraint.Relation == Exactly {
			state.exactly = append(state.exactly, index)
		}
	}

	return state
}

func (state *searchState) enqueue(constraint int) {
	if !state.queued[constraint] {
		state.queued[constraint] = true
		state.queue = append(state.queue, constraint)
	}
}

func (state *searchState) assign(variable uint64, value int8) {
	state.values[variable] = value
	state.trail = append(state.trail, variable)

	for _, occurrence := range state.occurrences[variable] {
		state.freeCount[occurrence.constraint]--
		state.freeWeight[occurrence.constraint] -= occurrence.coefficient
		if value == trueValue {
			state.trueWeight[occurrence.constraint] += occurrence.coefficient
		}
		state.enqueue(occurrence.constraint)
	}
}

// undo unassigns every variable placed on the trail after position "to"
func (state *searchState) undo(to int) {
	for len(state.trail) > to {
		variable := state.trail[len(state.trail)-1]
		state.trail = state.trail[:len(state.trail)-1]

		value := state.values[variable]
		for _, occurrence := range state.occurrences[variable] {
			state.freeCount[occurrence.constraint]++
			state.freeWeight[occurrence.constraint] += occurrence.coefficient
			if value == trueValue {
				state.trueWeight[occurrence.constraint] -= occurrence.coefficient
			}
		}
		state.values[variable] = unassigned
	}
}

// propagate runs queued constraints to a fixed point. It returns false as soon as a constraint cannot be satisfied anymore
func (state *searchState) propagate() bool {
	// The queue may grow while it is being consumed
	for head := 0; head < len(state.queue); head++ {
		index := state.queue[head]
		state.queued[index] = false

		if !state.propagateConstraint(index) {
			for _, pending := range state.queue[head+1:] {
				state.queued[pending] = false
			}
			state.queue = state.queue[:0]
			return false
		}
	}
	state.queue = state.queue[:0]
	return true
}

func (state *searchState) propagateConstraint(index int) bool {
	constraint := &state.problem.Constraints[index]

	if state.trueWeight[index] > constraint.Bound {
		return false
	} else if constraint.Relation == Exactly && state.trueWeight[index]+state.freeWeight[index] < constraint.Bound {
		return false
	} else if state.freeCount[index] == 0 {
		return true
	}

	for _, term := range constraint.Terms {
		if state.values[term.Variable] != unassigned {
			continue
		}

		if state.trueWeight[index]+term.Coefficient > constraint.Bound {
			// Taking the variable would overflow the bound
			state.assign(term.Variable, falseValue)
		} else if constraint.Relation == Exactly && state.trueWeight[index]+state.freeWeight[index]-term.Coefficient < constraint.Bound {
			// The bound cannot be reached without the variable
			state.assign(term.Variable, trueValue)
		}
	}
	return true
}

// selectVariable returns the next decision variable or 0 when every variable is assigned
func (state *searchState) selectVariable() uint64 {
	best, bestFree := -1, 0
	for _, index := range state.exactly {
		if state.freeCount[index] == 0 || state.trueWeight[index] >= state.problem.Constraints[index].Bound {
			continue
		}
		if best == -1 || state.freeCount[index] < bestFree {
			best, bestFree = index, state.freeCount[index]
		}
	}

	if best != -1 {
		for _, term := range state.problem.Constraints[best].Terms {
			if state.values[term.Variable] == unassigned {
				return term.Variable
			}
		}
	}

	for variable := uint64(1); variable <= state.problem.Variables; variable++ {
		if state.values[variable] == unassigned {
			return variable
		}
	}
	return 0
}

func (state *searchState) solution() SATSolution {
	solution := make(SATSolution, 0, state.problem.Variables)
	for variable := uint64(1); variable <= state.problem.Variables; variable++ {
		literal := int64(variable)
		if state.values[variable] != trueValue {
			literal = -literal
		}
		solution = append(solution, literal)
	}
	return solution
}
