package sat

import "math/rand/v2"

func generateProblem(random *rand.Rand, variables uint64, constraints int) Problem {
	problem := Problem{
		Variables:   variables,
		Constraints: make([]Constraint, constraints),
	}

	for i := range constraints {
		terms := make([]Term, 0, variables)
		var weight uint64
		for j := range variables {
			if random.Float32() < 0.5 {
				coefficient := 1 + random.Uint64N(3)
				terms = append(terms, Term{Variable: j + 1, Coefficient: coefficient})
				weight += coefficient
			}
		}

		relation := AtMost
		if random.Float32() < 0.3 {
			relation = Exactly
		}

		problem.Constraints[i] = Constraint{
			Terms:    terms,
			Relation: relation,
			Bound:    random.Uint64N(weight + 1),
		}
	}

	return problem
}

// bruteForceSatisfiable enumerates every assignment; only meant for a handful of variables
func bruteForceSatisfiable(problem Problem) bool {
	for mask := uint64(0); mask < 1<<problem.Variables; mask++ {
		solution := make(SATSolution, 0, problem.Variables)
		for variable := uint64(1); variable <= problem.Variables; variable++ {
			literal := int64(variable)
			if mask&(1<<(variable-1)) == 0 {
				literal = -literal
			}
			solution = append(solution, literal)
		}
		if problem.Satisfies(solution) {
			return true
		}
	}
	return false
}

// exactlyOne builds a unit-coefficient equality constraint over the given variables
func exactlyOne(variables ...uint64) Constraint {
	return unitConstraint(Exactly, 1, variables...)
}

func atMostOne(variables ...uint64) Constraint {
	return unitConstraint(AtMost, 1, variables...)
}

func unitConstraint(relation Relation, bound uint64, variables ...uint64) Constraint {
	terms := make([]Term, 0, len(variables))
	for _, variable := range variables {
		terms = append(terms, Term{Variable: variable, Coefficient: 1})
	}
	return Constraint{Terms: terms, Relation: relation, Bound: bound}
}

// pigeonhole places every pigeon in exactly one hole with at most one pigeon per hole: x(p,h) = p*holes + h + 1
func pigeonhole(pigeons, holes uint64) *Problem {
	problem := &Problem{Variables: pigeons * holes}
	for pigeon := range pigeons {
		variables := make([]uint64, 0, holes)
		for hole := range holes {
			variables = append(variables, pigeon*holes+hole+1)
		}
		problem.Constraints = append(problem.Constraints, exactlyOne(variables...))
	}
	for hole := range holes {
		variables := make([]uint64, 0, pigeons)
		for pigeon := range pigeons {
			variables = append(variables, pigeon*holes+hole+1)
		}
		problem.Constraints = append(problem.Constraints, atMostOne(variables...))
	}
	return problem
}
