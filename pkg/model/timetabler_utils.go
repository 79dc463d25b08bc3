package model

import (
	"slices"

	"github.com/limaJavier/course-timetabling/pkg/sat"

	"github.com/onsi/gomega/matchers/support/goraph/bipartitegraph"
	"github.com/samber/lo"
)

// Above this many candidate edges the faculty matching is skipped and left to the search
const capacityCheckLimit = 1 << 16

func buildProblem(state constraintState) *sat.Problem {
	type compiledFamily struct {
		index       int
		constraints []sat.Constraint
	}

	// Execute constraint families on different goroutines to improve performance
	familiesChannel := make(chan compiledFamily, len(constraintFamilies))
	for i, family := range constraintFamilies {
		go func() {
			familiesChannel <- compiledFamily{i, family(state)}
		}()
	}

	// Collect generated constraints keeping the families' order regardless of completion order
	compiled := make([][]sat.Constraint, len(constraintFamilies))
	for range constraintFamilies {
		family := <-familiesChannel
		compiled[family.index] = family.constraints
	}

	return &sat.Problem{
		Variables:   state.space.Variables(),
		Constraints: lo.Flatten(compiled),
	}
}

// capacityCheck verifies necessary conditions for completeness plus exclusivity and load: every course needs its own
// (room, time slot) pair and its own (eligible faculty, time slot) pair, and no faculty member can take more courses
// than its load allows. A false result proves infeasibility
func capacityCheck(instance *Instance) (bool, error) {
	courses := len(instance.Courses)
	if courses > len(instance.Rooms)*len(instance.TimeSlots) {
		return false, nil
	}

	// Every course is taught by someone, so the total load must cover every credit
	credits := lo.SumBy(instance.Courses, func(course Course) uint64 { return course.Credits })
	capacity := lo.SumBy(instance.Faculty, func(faculty Faculty) uint64 { return faculty.MaxLoad })
	if credits > capacity {
		return false, nil
	}

	// A faculty member never needs more than one pair per course, nor more pairs than the courses its load can hold
	copies := loadCapacities(instance)
	for faculty := range copies {
		copies[faculty] = min(copies[faculty], len(instance.TimeSlots), courses)
	}
	if lo.Sum(copies) < courses {
		return false, nil
	}
	if courses*lo.Sum(copies) > capacityCheckLimit {
		return true, nil
	}

	left := lo.Times(courses, func(course int) any { return course })
	right := make([]any, 0, lo.Sum(copies))
	for faculty, count := range copies {
		for range count {
			right = append(right, faculty)
		}
	}

	eligible := make([]map[int]bool, courses)
	for course, faculty := range instance.eligible {
		eligible[course] = lo.SliceToMap(faculty, func(faculty int) (int, bool) { return faculty, true })
	}
	neighbors := func(courseAny any, facultyAny any) (bool, error) {
		return eligible[courseAny.(int)][facultyAny.(int)], nil
	}

	graph, err := bipartitegraph.NewBipartiteGraph(left, right, neighbors)
	if err != nil {
		return false, err
	}
	return len(graph.LargestMatching()) == courses, nil
}

// loadCapacities returns, per faculty position, the largest number of its eligible courses that fit its maximum load,
// taking the courses with the fewest credits first
func loadCapacities(instance *Instance) []int {
	eligibleCredits := make([][]uint64, len(instance.Faculty))
	for course, faculty := range instance.eligible {
		for _, member := range faculty {
			eligibleCredits[member] = append(eligibleCredits[member], instance.Courses[course].Credits)
		}
	}

	capacities := make([]int, len(instance.Faculty))
	for faculty, credits := range eligibleCredits {
		slices.Sort(credits)
		var load uint64
		for _, credit := range credits {
			if load+credit > instance.Faculty[faculty].MaxLoad {
				break
			}
			load += credit
			capacities[faculty]++
		}
	}
	return capacities
}

// extractTimetable returns the combinations of the true variables in variable order
func extractTimetable(solution sat.SATSolution, instance *Instance, space *variableSpace) Timetable {
	return lo.FilterMap(solution, func(literal int64, _ int) (Assignment, bool) {
		if literal <= 0 {
			return Assignment{}, false
		}
		course, faculty, room, slot := space.Attributes(uint64(literal))
		return Assignment{
			Course:   instance.Courses[course].Id,
			Faculty:  instance.Faculty[faculty].Id,
			Room:     instance.Rooms[room].Id,
			TimeSlot: instance.TimeSlots[slot].Id,
		}, true
	})
}

func verify(timetable Timetable, modelInput ModelInput) bool {
	instance, err := NewInstance(modelInput)
	if err != nil {
		return false
	}

	scheduled := make(map[uint64]bool)    // Course
	roomUsage := make(map[[2]uint64]bool) // Room, time slot
	facultyUsage := make(map[[2]uint64]bool)
	load := make(map[uint64]uint64)

	for _, assignment := range timetable {
		course, knownCourse := instance.coursePositions[assignment.Course]
		faculty, knownFaculty := instance.facultyPositions[assignment.Faculty]
		_, knownRoom := instance.roomPositions[assignment.Room]
		_, knownSlot := instance.slotPositions[assignment.TimeSlot]
		roomKey := [2]uint64{assignment.Room, assignment.TimeSlot}
		facultyKey := [2]uint64{assignment.Faculty, assignment.TimeSlot}

		// Check that:
		// - Every attribute references a known record
		// - Faculty is eligible for the course
		// - Course is not already scheduled
		// - Room is not already taken at the time slot
		// - Faculty is not already teaching at the time slot
		if !knownCourse || !knownFaculty || !knownRoom || !knownSlot ||
			!instance.Eligible(assignment.Faculty, assignment.Course) ||
			scheduled[assignment.Course] ||
			roomUsage[roomKey] ||
			facultyUsage[facultyKey] {
			return false
		}

		scheduled[assignment.Course] = true
		roomUsage[roomKey] = true
		facultyUsage[facultyKey] = true
		load[assignment.Faculty] += instance.Courses[course].Credits

		if load[assignment.Faculty] > instance.Faculty[faculty].MaxLoad {
			return false
		}
	}

	// Check whether every course has been scheduled
	return len(scheduled) == len(instance.Courses)
}
