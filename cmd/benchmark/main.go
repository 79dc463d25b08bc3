package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/limaJavier/course-timetabling/pkg/config"
	"github.com/limaJavier/course-timetabling/pkg/logger"
	"github.com/limaJavier/course-timetabling/pkg/model"
	"github.com/limaJavier/course-timetabling/pkg/sat"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const slotsPerWeek = 10

type ResultType int

const (
	solved ResultType = iota
	unsatisfiable
	timeout
	rejected
)

var resultTypes = map[ResultType]string{
	solved:        "solved",
	unsatisfiable: "unsatisfiable",
	timeout:       "timeout",
	rejected:      "rejected",
}

type TestMetadata struct {
	Seed      uint64
	Courses   int
	Faculty   int
	Rooms     int
	TimeSlots int
	Variables uint64
}

type BenchmarkResult struct {
	Test     TestMetadata
	Duration int64 // Milliseconds
	Result   ResultType
}

func main() {
	sizesPtr := flag.String("sizes", "10,20,40,80", "Comma separated number of courses of every generated instance")
	repetitionsPtr := flag.Int("repetitions", 3, "Instances generated per size")
	workersPtr := flag.Int("workers", 0, "Instances solved concurrently; if zero, the configured number of workers is used")
	budgetPtr := flag.Duration("budget", 0, "Time budget per instance; if zero, the configured budget is used")
	outFilePathPtr := flag.String("out", "benchmark_results.csv", "Path to the CSV report")
	flag.Parse()

	sizes, err := parseSizes(*sizesPtr)
	if err != nil {
		log.Fatalf("invalid sizes: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("cannot load configuration: %v", err)
	}
	if *workersPtr > 0 {
		cfg.Benchmark.Workers = *workersPtr
	}
	if *budgetPtr > 0 {
		cfg.Solver.TimeBudget = *budgetPtr
	}

	zapLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}
	defer zapLogger.Sync()

	tests := make([]TestMetadata, 0, len(sizes)*(*repetitionsPtr))
	for _, size := range sizes {
		for repetition := range *repetitionsPtr {
			tests = append(tests, TestMetadata{Seed: uint64(size*1000 + repetition), Courses: size})
		}
	}

	results := benchmark(tests, cfg, zapLogger)
	if err := toCsv(results, *outFilePathPtr); err != nil {
		zapLogger.Fatal("cannot write CSV report", zap.Error(err))
	}

	counts := lo.CountValuesBy(results, func(result BenchmarkResult) string { return resultTypes[result.Result] })
	zapLogger.Info("benchmark finished", zap.Int("tests", len(results)), zap.Any("results", counts))
}

// benchmark solves every test on a pool of workers and returns the results in test order
func benchmark(tests []TestMetadata, cfg *config.Config, zapLogger *zap.Logger) []BenchmarkResult {
	results := make([]BenchmarkResult, len(tests))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range max(cfg.Benchmark.Workers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every worker owns its solver
			timetabler := model.NewTimetabler(sat.NewPropagationSolver(cfg.Solver.CheckInterval, nil), model.TimetablerConfig{
				TimeBudget:   cfg.Solver.TimeBudget,
				MaxVariables: cfg.Solver.MaxVariables,
				Logger:       zapLogger,
			})
			for i := range jobs {
				results[i] = measure(timetabler, tests[i])
				zapLogger.Info("instance benchmarked",
					zap.Int("courses", tests[i].Courses),
					zap.Uint64("seed", tests[i].Seed),
					zap.String("result", resultTypes[results[i].Result]),
					zap.Int64("durationMs", results[i].Duration),
				)
			}
		}()
	}

	for i := range tests {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func measure(timetabler model.Timetabler, test TestMetadata) BenchmarkResult {
	input := generateInput(rand.New(rand.NewPCG(test.Seed, uint64(test.Courses))), test.Courses)
	test.Faculty, test.Rooms, test.TimeSlots = len(input.Faculty), len(input.Rooms), len(input.TimeSlots)
	if instance, err := model.NewInstance(input); err == nil {
		test.Variables = instance.Variables()
	}

	start := time.Now()
	timetable, err := timetabler.Build(context.Background(), input)
	duration := time.Since(start).Milliseconds()

	result := resultOf(err)
	if result == solved && !timetabler.Verify(timetable, input) {
		log.Fatalf("an invalid timetable was built for %v courses and seed %v", test.Courses, test.Seed)
	}

	return BenchmarkResult{Test: test, Duration: duration, Result: result}
}

func resultOf(err error) ResultType {
	var noSolution model.NoSolutionError
	switch {
	case err == nil:
		return solved
	case errors.As(err, &noSolution) && noSolution.Status == sat.Timeout:
		return timeout
	case errors.As(err, &noSolution):
		return unsatisfiable
	default:
		return rejected
	}
}

// generateInput builds an instance with roughly four courses per faculty member and half of the faculty eligible for each course
func generateInput(random *rand.Rand, courses int) model.ModelInput {
	faculty := courses/4 + 1
	rooms := courses/slotsPerWeek + 1

	input := model.ModelInput{
		Courses:     lo.Times(courses, func(i int) model.Course { return model.Course{Id: uint64(i + 1), Credits: 1 + random.Uint64N(4)} }),
		Faculty:     lo.Times(faculty, func(i int) model.Faculty { return model.Faculty{Id: uint64(i + 1), MaxLoad: 8 + random.Uint64N(8)} }),
		Rooms:       lo.Times(rooms, func(i int) model.Room { return model.Room{Id: uint64(i + 1)} }),
		TimeSlots:   lo.Times(slotsPerWeek, func(i int) model.TimeSlot { return model.TimeSlot{Id: uint64(i + 1)} }),
		Eligibility: make([]model.Eligibility, 0, courses*faculty/2),
	}

	for _, course := range input.Courses {
		eligible := lo.Filter(input.Faculty, func(_ model.Faculty, _ int) bool { return random.Float32() < 0.5 })
		if len(eligible) == 0 {
			eligible = []model.Faculty{input.Faculty[random.IntN(faculty)]}
		}
		for _, member := range eligible {
			input.Eligibility = append(input.Eligibility, model.Eligibility{Faculty: member.Id, Course: course.Id})
		}
	}

	return input
}

func parseSizes(sizes string) ([]int, error) {
	parsed := make([]int, 0)
	for _, size := range strings.Split(sizes, ",") {
		courses, err := strconv.Atoi(strings.TrimSpace(size))
		if err != nil {
			return nil, err
		} else if courses <= 0 {
			return nil, fmt.Errorf("number of courses must be positive: %v", courses)
		}
		parsed = append(parsed, courses)
	}
	return parsed, nil
}

func toCsv(results []BenchmarkResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"Seed", "Courses", "Faculty", "Rooms", "TimeSlots", "Variables", "Duration(ms)", "Result"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("cannot write CSV header: %w", err)
	}

	for _, result := range results {
		record := []string{
			fmt.Sprintf("%d", result.Test.Seed),
			fmt.Sprintf("%d", result.Test.Courses),
			fmt.Sprintf("%d", result.Test.Faculty),
			fmt.Sprintf("%d", result.Test.Rooms),
			fmt.Sprintf("%d", result.Test.TimeSlots),
			fmt.Sprintf("%d", result.Test.Variables),
			fmt.Sprintf("%d", result.Duration),
			resultTypes[result.Result],
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("cannot write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
