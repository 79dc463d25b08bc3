package model

import (
	"github.com/limaJavier/course-timetabling/pkg/sat"

	"github.com/samber/lo"
)

type constraintState struct {
	instance *Instance
	space    *variableSpace
}

type constraintFamily func(state constraintState) []sat.Constraint

// Families are listed in the order their constraints appear in the compiled problem
var constraintFamilies = []constraintFamily{
	completenessConstraints,
	roomConstraints,
	facultyConstraints,
	loadConstraints,
}

// Every course is taught exactly once: Σ x(c,f,r,t) over f, r, t = 1
func completenessConstraints(state constraintState) []sat.Constraint {
	return lo.Map(state.space.byCourse, func(variables []uint64, _ int) sat.Constraint {
		return unitConstraint(variables, sat.Exactly)
	})
}

// A room hosts at most one course per time slot: Σ x(c,f,r,t) over c, f <= 1
func roomConstraints(state constraintState) []sat.Constraint {
	return exclusivityConstraints(state.space.byRoomSlot)
}

// A faculty member teaches at most one course per time slot: Σ x(c,f,r,t) over c, r <= 1
func facultyConstraints(state constraintState) []sat.Constraint {
	return exclusivityConstraints(state.space.byFacultySlot)
}

// A faculty member's load stays within its maximum: Σ credits(c)·x(c,f,r,t) over c, r, t <= maxLoad(f)
func loadConstraints(state constraintState) []sat.Constraint {
	constraints := make([]sat.Constraint, 0, len(state.space.byFaculty))
	for faculty, variables := range state.space.byFaculty {
		if len(variables) == 0 {
			continue
		}

		terms := lo.Map(variables, func(variable uint64, _ int) sat.Term {
			course, _, _, _ := state.space.Attributes(variable)
			return sat.Term{Variable: variable, Coefficient: state.instance.Courses[course].Credits}
		})
		constraints = append(constraints, sat.Constraint{
			Terms:    terms,
			Relation: sat.AtMost,
			Bound:    state.instance.Faculty[faculty].MaxLoad,
		})
	}
	return constraints
}

// A single variable can never exceed a bound of one, so only groups of two or more are constrained
func exclusivityConstraints(groups [][]uint64) []sat.Constraint {
	return lo.FilterMap(groups, func(variables []uint64, _ int) (sat.Constraint, bool) {
		return unitConstraint(variables, sat.AtMost), len(variables) > 1
	})
}

func unitConstraint(variables []uint64, relation sat.Relation) sat.Constraint {
	return sat.Constraint{
		Terms: lo.Map(variables, func(variable uint64, _ int) sat.Term {
			return sat.Term{Variable: variable, Coefficient: 1}
		}),
		Relation: relation,
		Bound:    1,
	}
}
