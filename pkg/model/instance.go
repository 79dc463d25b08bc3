package model

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Instance is the validated, read-only view of a ModelInput used by a single solve.
// Every collection is sorted by id and positions (not ids) are used internally
type Instance struct {
	Courses   []Course
	Faculty   []Faculty
	Rooms     []Room
	TimeSlots []TimeSlot
	Relaxed   bool // Every faculty is eligible for every course

	eligible         [][]int // Per course position, eligible faculty positions in ascending order
	coursePositions  map[uint64]int
	facultyPositions map[uint64]int
	roomPositions    map[uint64]int
	slotPositions    map[uint64]int
}

// NewInstance validates the input and builds the eligibility table. Caller slices are never modified
func NewInstance(modelInput ModelInput) (*Instance, error) {
	//** Check collections
	missing := make([]string, 0)
	if len(modelInput.Courses) == 0 {
		missing = append(missing, "courses")
	}
	if len(modelInput.Faculty) == 0 {
		missing = append(missing, "faculty")
	}
	if len(modelInput.Rooms) == 0 {
		missing = append(missing, "rooms")
	}
	if len(modelInput.TimeSlots) == 0 {
		missing = append(missing, "time slots")
	}
	if len(missing) > 0 {
		return nil, InsufficientDataError{Missing: missing}
	}

	//** Check records
	if err := validator.New().Struct(modelInput); err != nil {
		return nil, InvalidInputError{Err: err}
	}
	if err := checkDuplicates(modelInput); err != nil {
		return nil, InvalidInputError{Err: err}
	}

	instance := &Instance{
		Courses:   sortedById(modelInput.Courses, func(course Course) uint64 { return course.Id }),
		Faculty:   sortedById(modelInput.Faculty, func(faculty Faculty) uint64 { return faculty.Id }),
		Rooms:     sortedById(modelInput.Rooms, func(room Room) uint64 { return room.Id }),
		TimeSlots: sortedById(modelInput.TimeSlots, func(slot TimeSlot) uint64 { return slot.Id }),
		Relaxed:   modelInput.Eligibility == nil,
	}
	instance.coursePositions = positions(instance.Courses, func(course Course) uint64 { return course.Id })
	instance.facultyPositions = positions(instance.Faculty, func(faculty Faculty) uint64 { return faculty.Id })
	instance.roomPositions = positions(instance.Rooms, func(room Room) uint64 { return room.Id })
	instance.slotPositions = positions(instance.TimeSlots, func(slot TimeSlot) uint64 { return slot.Id })

	//** Build eligibility
	// Pairs referencing unknown records are ignored and repeated pairs collapse into one
	pairs := lo.SliceToMap(modelInput.Eligibility, func(pair Eligibility) ([2]uint64, bool) {
		return [2]uint64{pair.Faculty, pair.Course}, true
	})

	instance.eligible = make([][]int, len(instance.Courses))
	for coursePosition, course := range instance.Courses {
		instance.eligible[coursePosition] = make([]int, 0, len(instance.Faculty))
		for facultyPosition, faculty := range instance.Faculty {
			if instance.Relaxed || pairs[[2]uint64{faculty.Id, course.Id}] {
				instance.eligible[coursePosition] = append(instance.eligible[coursePosition], facultyPosition)
			}
		}

		if len(instance.eligible[coursePosition]) == 0 {
			return nil, UnassignableCourseError{Course: course.Id}
		}
	}

	return instance, nil
}

// Eligible reports whether the faculty may teach the course. Unknown ids are never eligible
func (instance *Instance) Eligible(faculty, course uint64) bool {
	coursePosition, ok := instance.coursePositions[course]
	if !ok {
		return false
	}
	facultyPosition, ok := instance.facultyPositions[faculty]
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(instance.eligible[coursePosition], facultyPosition)
	return found
}

// Variables returns |courses| × |eligible faculty per course| × |rooms| × |time slots|
func (instance *Instance) Variables() uint64 {
	perCourse := uint64(len(instance.Rooms)) * uint64(len(instance.TimeSlots))
	return lo.SumBy(instance.eligible, func(faculty []int) uint64 {
		return uint64(len(faculty)) * perCourse
	})
}

func checkDuplicates(modelInput ModelInput) error {
	if duplicates := lo.FindDuplicatesBy(modelInput.Courses, func(course Course) uint64 { return course.Id }); len(duplicates) > 0 {
		return fmt.Errorf("duplicate course id %v", duplicates[0].Id)
	}
	if duplicates := lo.FindDuplicatesBy(modelInput.Faculty, func(faculty Faculty) uint64 { return faculty.Id }); len(duplicates) > 0 {
		return fmt.Errorf("duplicate faculty id %v", duplicates[0].Id)
	}
	if duplicates := lo.FindDuplicatesBy(modelInput.Rooms, func(room Room) uint64 { return room.Id }); len(duplicates) > 0 {
		return fmt.Errorf("duplicate room id %v", duplicates[0].Id)
	}
	if duplicates := lo.FindDuplicatesBy(modelInput.TimeSlots, func(slot TimeSlot) uint64 { return slot.Id }); len(duplicates) > 0 {
		return fmt.Errorf("duplicate time slot id %v", duplicates[0].Id)
	}
	return nil
}

func sortedById[T any](records []T, id func(T) uint64) []T {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b T) int {
		return cmp.Compare(id(a), id(b))
	})
	return sorted
}

func positions[T any](records []T, id func(T) uint64) map[uint64]int {
	positions := make(map[uint64]int, len(records))
	for position, record := range records {
		positions[id(record)] = position
	}
	return positions
}
