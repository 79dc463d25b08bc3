package sat

import (
	"fmt"
	"strings"
)

type Relation int

const (
	AtMost  Relation = iota // Σ coefficient·x <= bound
	Exactly                 // Σ coefficient·x == bound
)

func (relation Relation) String() string {
	switch relation {
	case AtMost:
		return "<="
	case Exactly:
		return "="
	}
	return fmt.Sprintf("Relation(%d)", int(relation))
}

type Term struct {
	Variable    uint64 // 1-based, as in DIMACS
	Coefficient uint64
}

// Constraint is a linear (in)equality over boolean variables with positive coefficients
type Constraint struct {
	Terms    []Term
	Relation Relation
	Bound    uint64
}

// Problem is a pseudo-boolean decision problem: find a 0/1 value for every variable such that every constraint holds
type Problem struct {
	Variables   uint64
	Constraints []Constraint
}

// SATSolution lists one literal per variable: +v when variable v is true and -v when it is false
type SATSolution []int64

// ToOPB renders the problem in the OPB text format. OPB only knows ">=" and "=", so at-most constraints are negated
func (problem Problem) ToOPB() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "* #variable= %d #constraint= %d\n", problem.Variables, len(problem.Constraints))
	for _, constraint := range problem.Constraints {
		sign, operator, bound := "+", "=", int64(constraint.Bound)
		if constraint.Relation == AtMost {
			sign, operator, bound = "-", ">=", -bound
		}
		for _, term := range constraint.Terms {
			fmt.Fprintf(&builder, "%s%d x%d ", sign, term.Coefficient, term.Variable)
		}
		fmt.Fprintf(&builder, "%s %d ;\n", operator, bound)
	}
	return builder.String()
}

// Validate checks that every term references an existing variable and carries a positive coefficient
func (problem Problem) Validate() error {
	for i, constraint := range problem.Constraints {
		if constraint.Relation != AtMost && constraint.Relation != Exactly {
			return fmt.Errorf("constraint %d has an unknown relation %v", i, constraint.Relation)
		}
		for _, term := range constraint.Terms {
			if term.Variable == 0 || term.Variable > problem.Variables {
				return fmt.Errorf("constraint %d references variable %d outside [1, %d]", i, term.Variable, problem.Variables)
			} else if term.Coefficient == 0 {
				return fmt.Errorf("constraint %d has a zero coefficient on variable %d", i, term.Variable)
			}
		}
	}
	return nil
}

// Satisfies reports whether the solution assigns every variable and fulfills every constraint
func (problem Problem) Satisfies(solution SATSolution) bool {
	if uint64(len(solution)) != problem.Variables {
		return false
	}

	values := make([]bool, problem.Variables+1)
	seen := make([]bool, problem.Variables+1)
	for _, literal := range solution {
		variable := literal
		if variable < 0 {
			variable = -variable
		}
		if variable == 0 || uint64(variable) > problem.Variables || seen[variable] {
			return false
		}
		seen[variable] = true
		values[variable] = literal > 0
	}

	for _, constraint := range problem.Constraints {
		var sum uint64
		for _, term := range constraint.Terms {
			if values[term.Variable] {
				sum += term.Coefficient
			}
		}
		if sum > constraint.Bound || (constraint.Relation == Exactly && sum != constraint.Bound) {
			return false
		}
	}
	return true
}
