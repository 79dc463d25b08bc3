package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limaJavier/course-timetabling/pkg/metrics"
	"github.com/limaJavier/course-timetabling/pkg/sat"
)

const (
	DefaultTimeBudget          = 120 * time.Second
	DefaultMaxVariables uint64 = 50_000_000
)

type Assignment struct {
	Course   uint64 `json:"course"`
	Faculty  uint64 `json:"faculty"`
	Room     uint64 `json:"room"`
	TimeSlot uint64 `json:"timeSlot"`
}

// Timetable is ordered by course, faculty, room and time slot ids
type Timetable []Assignment

type Timetabler interface {
	Build(ctx context.Context, modelInput ModelInput) (Timetable, error)

	Verify(timetable Timetable, modelInput ModelInput) bool
}

type TimetablerConfig struct {
	TimeBudget   time.Duration // Covers the whole build, defaults to DefaultTimeBudget
	MaxVariables uint64        // Defaults to DefaultMaxVariables
	Logger       *zap.Logger
	Metrics      *metrics.Recorder
}

type timetabler struct {
	solver sat.SATSolver
	config TimetablerConfig
}

func NewTimetabler(solver sat.SATSolver, config TimetablerConfig) Timetabler {
	if config.TimeBudget <= 0 {
		config.TimeBudget = DefaultTimeBudget
	}
	if config.MaxVariables == 0 {
		config.MaxVariables = DefaultMaxVariables
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &timetabler{
		solver: solver,
		config: config,
	}
}

// Solve builds a timetable with the propagation solver. A non-positive budget selects DefaultTimeBudget
func Solve(ctx context.Context, modelInput ModelInput, budget time.Duration) (Timetable, error) {
	timetabler := NewTimetabler(sat.NewPropagationSolver(0, nil), TimetablerConfig{TimeBudget: budget})
	return timetabler.Build(ctx, modelInput)
}

// Compile builds the pseudo-boolean problem of an instance without solving it. A zero maxVariables disables the limit
func Compile(modelInput ModelInput, maxVariables uint64) (*sat.Problem, error) {
	instance, err := NewInstance(modelInput)
	if err != nil {
		return nil, err
	}
	space, err := newVariableSpace(instance, maxVariables)
	if err != nil {
		return nil, err
	}
	return buildProblem(constraintState{instance: instance, space: space}), nil
}

func (timetabler *timetabler) Build(ctx context.Context, modelInput ModelInput) (Timetable, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timetabler.config.TimeBudget)
	defer cancel()

	logger := timetabler.config.Logger.With(zap.String("solve_id", uuid.NewString()))

	//** Build domain model
	instance, err := NewInstance(modelInput)
	if err != nil {
		timetabler.reject(logger, err)
		return nil, err
	}
	logger.Info("instance accepted",
		zap.Int("courses", len(instance.Courses)),
		zap.Int("faculty", len(instance.Faculty)),
		zap.Int("rooms", len(instance.Rooms)),
		zap.Int("timeSlots", len(instance.TimeSlots)),
		zap.Bool("relaxed", instance.Relaxed),
	)

	//** Build variable space
	space, err := newVariableSpace(instance, timetabler.config.MaxVariables)
	if err != nil {
		timetabler.reject(logger, err)
		return nil, err
	}

	//** Discard instances that cannot fit before searching
	fits, err := capacityCheck(instance)
	if err != nil {
		return nil, fmt.Errorf("cannot check instance capacity: %w", err)
	} else if !fits {
		timetabler.finish(logger, start, sat.Result{Status: sat.Infeasible}, space.Variables())
		return nil, NoSolutionError{Status: sat.Infeasible}
	}

	//** Compile and solve
	problem := buildProblem(constraintState{instance: instance, space: space})
	logger.Debug("problem compiled",
		zap.Uint64("variables", problem.Variables),
		zap.Int("constraints", len(problem.Constraints)),
	)

	result, err := timetabler.solver.Solve(ctx, problem)
	if err != nil {
		return nil, fmt.Errorf("cannot solve timetabling problem: %w", err)
	} else if !result.Status.Terminal() {
		return nil, fmt.Errorf("solver stopped with non-terminal status %v", result.Status)
	}
	timetabler.finish(logger, start, result, problem.Variables)

	if result.Status != sat.Feasible {
		return nil, NoSolutionError{Status: result.Status}
	}
	return extractTimetable(result.Solution, instance, space), nil
}

func (timetabler *timetabler) Verify(timetable Timetable, modelInput ModelInput) bool {
	return verify(timetable, modelInput)
}

func (timetabler *timetabler) finish(logger *zap.Logger, start time.Time, result sat.Result, variables uint64) {
	duration := time.Since(start)
	timetabler.config.Metrics.ObserveSolve(result.Status.String(), duration, variables, result.Nodes)

	fields := []zap.Field{
		zap.Stringer("status", result.Status),
		zap.Duration("duration", duration),
		zap.Uint64("variables", variables),
		zap.Uint64("nodes", result.Nodes),
		zap.Uint64("backtracks", result.Backtracks),
	}
	if result.Status == sat.Feasible {
		logger.Info("timetable built", fields...)
	} else {
		logger.Warn("no timetable found", fields...)
	}
}

func (timetabler *timetabler) reject(logger *zap.Logger, err error) {
	reason := "invalid_input"
	var (
		insufficient InsufficientDataError
		unassignable UnassignableCourseError
		oversized    VariableSpaceError
	)
	switch {
	case errors.As(err, &insufficient):
		reason = "insufficient_data"
	case errors.As(err, &unassignable):
		reason = "unassignable_course"
	case errors.As(err, &oversized):
		reason = "variable_space"
	}

	timetabler.config.Metrics.ObserveRejection(reason)
	logger.Warn("instance rejected", zap.String("reason", reason), zap.Error(err))
}
