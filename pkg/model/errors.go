package model

import (
	"fmt"
	"strings"

	"github.com/limaJavier/course-timetabling/pkg/sat"
)

// InsufficientDataError is returned when at least one of the input collections is empty
type InsufficientDataError struct {
	Missing []string
}

func (err InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for scheduling: no %v", strings.Join(err.Missing, ", "))
}

// InvalidInputError is returned when a record breaks a basic rule (non-positive load, duplicate id)
type InvalidInputError struct {
	Err error
}

func (err InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %v", err.Err)
}

func (err InvalidInputError) Unwrap() error {
	return err.Err
}

// UnassignableCourseError is returned before search when no faculty is eligible to teach a course
type UnassignableCourseError struct {
	Course uint64
}

func (err UnassignableCourseError) Error() string {
	return fmt.Sprintf("no faculty is eligible to teach course %v", err.Course)
}

// VariableSpaceError is returned when the instance would need more decision variables than allowed
type VariableSpaceError struct {
	Variables uint64
	Limit     uint64
}

func (err VariableSpaceError) Error() string {
	return fmt.Sprintf("instance needs %v decision variables, the limit is %v: shrink the input or raise the limit", err.Variables, err.Limit)
}

// NoSolutionError carries the terminal status of a search that did not produce a timetable.
// Infeasible proves that no timetable exists while Timeout means the budget ran out first
type NoSolutionError struct {
	Status sat.Status
}

func (err NoSolutionError) Error() string {
	return fmt.Sprintf("no solution found, status: %v", err.Status)
}
