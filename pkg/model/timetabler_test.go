package model

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/limaJavier/course-timetabling/pkg/metrics"
	"github.com/limaJavier/course-timetabling/pkg/sat"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

const feasibleTestDirectory = "testdata/feasible/"

func TestScenarios(t *testing.T) {
	t.Run("Two courses on distinct faculty and time slots", func(t *testing.T) {
		//** Arrange
		input := scenarioAInput()

		//** Act
		timetable, err := Solve(context.Background(), input, time.Minute)

		//** Assert
		assert.Nil(t, err)
		assert.Equal(t, Timetable{
			{Course: 1, Faculty: 1, Room: 1, TimeSlot: 1},
			{Course: 2, Faculty: 2, Room: 1, TimeSlot: 2},
		}, timetable)
		assert.True(t, verify(timetable, input))
	})

	t.Run("Two courses sharing a single room and time slot", func(t *testing.T) {
		_, err := Solve(context.Background(), scenarioBInput(), time.Minute)

		var noSolution NoSolutionError
		assert.True(t, errors.As(err, &noSolution))
		assert.Equal(t, sat.Infeasible, noSolution.Status)
	})

	t.Run("Course without eligible faculty", func(t *testing.T) {
		input := ModelInput{
			Courses:     []Course{{Id: 1, Credits: 3}},
			Faculty:     []Faculty{{Id: 1, MaxLoad: 3}, {Id: 2, MaxLoad: 3}},
			Rooms:       []Room{{Id: 1}},
			TimeSlots:   []TimeSlot{{Id: 1}},
			Eligibility: []Eligibility{{Faculty: 1, Course: 2}},
		}

		_, err := Solve(context.Background(), input, time.Minute)

		var unassignable UnassignableCourseError
		assert.True(t, errors.As(err, &unassignable))
		assert.Equal(t, uint64(1), unassignable.Course)
	})

	t.Run("Courses exceeding what the faculty load can hold", func(t *testing.T) {
		start := time.Now()

		_, err := Solve(context.Background(), overloadedInput(), 10*time.Second)

		var noSolution NoSolutionError
		assert.True(t, errors.As(err, &noSolution))
		assert.Equal(t, sat.Infeasible, noSolution.Status)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("Credits that cannot be packed into the faculty loads", func(t *testing.T) {
		//** Arrange
		input := packingInput()
		problem, err := Compile(input, 0)
		assert.Nil(t, err)

		//** Act
		result, solveErr := sat.NewPropagationSolver(0, nil).Solve(context.Background(), problem)
		_, err = Solve(context.Background(), input, time.Minute)

		//** Assert
		assert.Nil(t, solveErr)
		assert.Equal(t, sat.Infeasible, result.Status)
		assert.Greater(t, result.Backtracks, uint64(0))

		var noSolution NoSolutionError
		assert.True(t, errors.As(err, &noSolution))
		assert.Equal(t, sat.Infeasible, noSolution.Status)
	})

	t.Run("Tight instance with an exhausted budget times out", func(t *testing.T) {
		_, err := Solve(context.Background(), scenarioDInput(), time.Nanosecond)

		var noSolution NoSolutionError
		assert.True(t, errors.As(err, &noSolution))
		assert.Equal(t, sat.Timeout, noSolution.Status)
	})
}

func TestTimetabler(t *testing.T) {
	recorder := metrics.NewRecorder()
	timetabler := NewTimetabler(sat.NewPropagationSolver(sat.DefaultCheckInterval, zaptest.NewLogger(t)), TimetablerConfig{
		TimeBudget: time.Minute,
		Logger:     zaptest.NewLogger(t),
		Metrics:    recorder,
	})

	t.Run("Satisfiable instances", func(t *testing.T) {
		testFiles, err := os.ReadDir(feasibleTestDirectory)
		assert.Nil(t, err)

		for _, file := range testFiles {
			//** Arrange
			input, err := InputFromJson(filepath.Join(feasibleTestDirectory, file.Name()))
			assert.Nil(t, err, file.Name())

			//** Act
			timetable, err := timetabler.Build(context.Background(), input)

			//** Assert
			assert.Nil(t, err, file.Name())
			assert.Len(t, timetable, len(input.Courses), file.Name())
			assert.True(t, timetabler.Verify(timetable, input), file.Name())
		}
	})

	t.Run("Planted instances", func(t *testing.T) {
		random := rand.New(rand.NewPCG(3, 5))
		for range 20 {
			input := plantedInput(random, 12, 4, 3, 5)

			timetable, err := timetabler.Build(context.Background(), input)

			assert.Nil(t, err)
			assertTimetableProperties(t, timetable, input)
		}
	})

	t.Run("Solutions do not depend on input order", func(t *testing.T) {
		random := rand.New(rand.NewPCG(13, 17))
		input := plantedInput(random, 10, 4, 3, 4)
		shuffled := ModelInput{
			Courses:     shuffle(random, input.Courses),
			Faculty:     shuffle(random, input.Faculty),
			Rooms:       shuffle(random, input.Rooms),
			TimeSlots:   shuffle(random, input.TimeSlots),
			Eligibility: shuffle(random, input.Eligibility),
		}

		first, err := timetabler.Build(context.Background(), input)
		assert.Nil(t, err)
		second, err := timetabler.Build(context.Background(), input)
		assert.Nil(t, err)
		third, err := timetabler.Build(context.Background(), shuffled)
		assert.Nil(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, first, third)
	})

	t.Run("Rejections are recorded", func(t *testing.T) {
		_, err := timetabler.Build(context.Background(), ModelInput{})
		var insufficient InsufficientDataError
		assert.True(t, errors.As(err, &insufficient))

		_, err = timetabler.Build(context.Background(), scenarioInput(t, func(input *ModelInput) { input.Faculty[0].MaxLoad = 0 }))
		var invalid InvalidInputError
		assert.True(t, errors.As(err, &invalid))

		assert.Contains(t, metricsText(t, recorder), `timetabling_rejections_total{reason="insufficient_data"} 1`)
		assert.Contains(t, metricsText(t, recorder), `timetabling_rejections_total{reason="invalid_input"} 1`)
	})

	t.Run("Oversized instances are rejected before compiling", func(t *testing.T) {
		small := NewTimetabler(sat.NewPropagationSolver(0, nil), TimetablerConfig{MaxVariables: 4, Metrics: recorder})

		_, err := small.Build(context.Background(), scenarioAInput())

		var oversized VariableSpaceError
		assert.True(t, errors.As(err, &oversized))
		assert.Equal(t, VariableSpaceError{Variables: 8, Limit: 4}, oversized)
		assert.Contains(t, metricsText(t, recorder), `timetabling_rejections_total{reason="variable_space"} 1`)
	})

	t.Run("Cancelled context times out", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := timetabler.Build(ctx, scenarioAInput())

		var noSolution NoSolutionError
		assert.True(t, errors.As(err, &noSolution))
		assert.Equal(t, sat.Timeout, noSolution.Status)
	})
}

type stalledSolver struct{}

func (stalledSolver) Solve(ctx context.Context, problem *sat.Problem) (sat.Result, error) {
	return sat.Result{Status: sat.Searching}, nil
}

func TestTimetablerRejectsNonTerminalResults(t *testing.T) {
	timetabler := NewTimetabler(stalledSolver{}, TimetablerConfig{})

	timetable, err := timetabler.Build(context.Background(), scenarioAInput())

	assert.Nil(t, timetable)
	assert.ErrorContains(t, err, "non-terminal status SEARCHING")
}

func TestVerify(t *testing.T) {
	input := scenarioAInput()
	valid := Timetable{
		{Course: 1, Faculty: 1, Room: 1, TimeSlot: 1},
		{Course: 2, Faculty: 2, Room: 1, TimeSlot: 2},
	}
	assert.True(t, verify(valid, input))

	invalid := map[string]Timetable{
		"missing course":   valid[:1],
		"unknown room":     {valid[0], {Course: 2, Faculty: 2, Room: 9, TimeSlot: 2}},
		"unknown course":   append(Timetable{{Course: 3, Faculty: 2, Room: 1, TimeSlot: 2}}, valid...),
		"course twice":     append(Timetable{{Course: 1, Faculty: 2, Room: 1, TimeSlot: 2}}, valid[0]),
		"room clash":       {valid[0], {Course: 2, Faculty: 2, Room: 1, TimeSlot: 1}},
		"faculty overload": {valid[0], {Course: 2, Faculty: 1, Room: 1, TimeSlot: 2}},
	}
	for name, timetable := range invalid {
		assert.False(t, verify(timetable, input), name)
	}

	t.Run("Faculty clash", func(t *testing.T) {
		roomy := scenarioAInput()
		roomy.Rooms = []Room{{Id: 1}, {Id: 2}}
		roomy.Faculty[0].MaxLoad = 6

		assert.False(t, verify(Timetable{
			{Course: 1, Faculty: 1, Room: 1, TimeSlot: 1},
			{Course: 2, Faculty: 1, Room: 2, TimeSlot: 1},
		}, roomy))
	})

	t.Run("Ineligible faculty", func(t *testing.T) {
		strict := scenarioAInput()
		strict.Eligibility = []Eligibility{{Faculty: 1, Course: 1}, {Faculty: 1, Course: 2}, {Faculty: 2, Course: 1}}

		assert.False(t, verify(valid, strict))
	})

	t.Run("Invalid input", func(t *testing.T) {
		assert.False(t, verify(valid, ModelInput{}))
	})
}

func assertTimetableProperties(t *testing.T, timetable Timetable, input ModelInput) {
	t.Helper()

	credits := lo.SliceToMap(input.Courses, func(course Course) (uint64, uint64) { return course.Id, course.Credits })
	maxLoads := lo.SliceToMap(input.Faculty, func(faculty Faculty) (uint64, uint64) { return faculty.Id, faculty.MaxLoad })
	eligible := lo.SliceToMap(input.Eligibility, func(pair Eligibility) (Eligibility, bool) { return pair, true })

	// Completeness
	assert.ElementsMatch(t,
		lo.Map(input.Courses, func(course Course, _ int) uint64 { return course.Id }),
		lo.Map(timetable, func(assignment Assignment, _ int) uint64 { return assignment.Course }),
	)

	// Room and faculty exclusivity
	assert.Len(t, lo.UniqBy(timetable, func(a Assignment) [2]uint64 { return [2]uint64{a.Room, a.TimeSlot} }), len(timetable))
	assert.Len(t, lo.UniqBy(timetable, func(a Assignment) [2]uint64 { return [2]uint64{a.Faculty, a.TimeSlot} }), len(timetable))

	// Load bound and eligibility
	load := make(map[uint64]uint64)
	for _, assignment := range timetable {
		load[assignment.Faculty] += credits[assignment.Course]
		assert.True(t, eligible[Eligibility{Faculty: assignment.Faculty, Course: assignment.Course}])
	}
	for faculty, total := range load {
		assert.LessOrEqual(t, total, maxLoads[faculty])
	}
}

// plantedInput builds a strict instance around a hidden valid timetable, so it is always feasible
func plantedInput(random *rand.Rand, courses, faculty, rooms, slots int) ModelInput {
	input := ModelInput{
		Courses:     lo.Times(courses, func(i int) Course { return Course{Id: uint64(i + 1), Credits: 1 + random.Uint64N(4)} }),
		Faculty:     lo.Times(faculty, func(i int) Faculty { return Faculty{Id: uint64(i + 1)} }),
		Rooms:       lo.Times(rooms, func(i int) Room { return Room{Id: uint64(i + 1)} }),
		TimeSlots:   lo.Times(slots, func(i int) TimeSlot { return TimeSlot{Id: uint64(i + 1)} }),
		Eligibility: make([]Eligibility, 0),
	}

	roomSlots := random.Perm(rooms * slots)
	busy := make(map[[2]int]bool) // Faculty, time slot
	for course := range courses {
		slot := roomSlots[course] % slots
		lecturer := random.IntN(faculty)
		for busy[[2]int{lecturer, slot}] {
			lecturer = (lecturer + 1) % faculty
		}
		busy[[2]int{lecturer, slot}] = true

		input.Faculty[lecturer].MaxLoad += input.Courses[course].Credits
		input.Eligibility = append(input.Eligibility, Eligibility{Faculty: uint64(lecturer + 1), Course: uint64(course + 1)})
		for other := range faculty {
			if other != lecturer && random.Float32() < 0.4 {
				input.Eligibility = append(input.Eligibility, Eligibility{Faculty: uint64(other + 1), Course: uint64(course + 1)})
			}
		}
	}

	for i := range input.Faculty {
		input.Faculty[i].MaxLoad += 1 + random.Uint64N(3)
	}
	return input
}

func metricsText(t *testing.T, recorder *metrics.Recorder) string {
	t.Helper()
	var buffer bytes.Buffer
	assert.Nil(t, recorder.WriteText(&buffer))
	return buffer.String()
}

func shuffle[T any](random *rand.Rand, records []T) []T {
	shuffled := append([]T(nil), records...)
	random.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled
}

func scenarioAInput() ModelInput {
	return ModelInput{
		Courses:   []Course{{Id: 1, Credits: 3}, {Id: 2, Credits: 3}},
		Faculty:   []Faculty{{Id: 1, MaxLoad: 3}, {Id: 2, MaxLoad: 3}},
		Rooms:     []Room{{Id: 1}},
		TimeSlots: []TimeSlot{{Id: 1}, {Id: 2}},
	}
}

func scenarioBInput() ModelInput {
	return ModelInput{
		Courses:   []Course{{Id: 1, Credits: 3}, {Id: 2, Credits: 3}},
		Faculty:   []Faculty{{Id: 1, MaxLoad: 3}},
		Rooms:     []Room{{Id: 1}},
		TimeSlots: []TimeSlot{{Id: 1}},
	}
}

// scenarioDInput fills every faculty member's load exactly: 50 courses of 3 credits over 10 faculty of 15 credits
func scenarioDInput() ModelInput {
	return ModelInput{
		Courses:   lo.Times(50, func(i int) Course { return Course{Id: uint64(i + 1), Credits: 3} }),
		Faculty:   lo.Times(10, func(i int) Faculty { return Faculty{Id: uint64(i + 1), MaxLoad: 15} }),
		Rooms:     lo.Times(5, func(i int) Room { return Room{Id: uint64(i + 1)} }),
		TimeSlots: lo.Times(10, func(i int) TimeSlot { return TimeSlot{Id: uint64(i + 1)} }),
	}
}

// overloadedInput has 8 courses of 3 credits while each of the 3 faculty members can hold only 2 of them
func overloadedInput() ModelInput {
	return ModelInput{
		Courses:   lo.Times(8, func(i int) Course { return Course{Id: uint64(i + 1), Credits: 3} }),
		Faculty:   lo.Times(3, func(i int) Faculty { return Faculty{Id: uint64(i + 1), MaxLoad: 7} }),
		Rooms:     lo.Times(3, func(i int) Room { return Room{Id: uint64(i + 1)} }),
		TimeSlots: lo.Times(4, func(i int) TimeSlot { return TimeSlot{Id: uint64(i + 1)} }),
	}
}

// packingInput fits every count and matching bound, but credits 3, 3, 3 and 1 cannot be split into two loads of 5
func packingInput() ModelInput {
	return ModelInput{
		Courses:   []Course{{Id: 1, Credits: 3}, {Id: 2, Credits: 3}, {Id: 3, Credits: 3}, {Id: 4, Credits: 1}},
		Faculty:   []Faculty{{Id: 1, MaxLoad: 5}, {Id: 2, MaxLoad: 5}},
		Rooms:     []Room{{Id: 1}, {Id: 2}},
		TimeSlots: []TimeSlot{{Id: 1}, {Id: 2}},
	}
}
