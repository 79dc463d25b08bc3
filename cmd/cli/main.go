package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/limaJavier/course-timetabling/pkg/config"
	"github.com/limaJavier/course-timetabling/pkg/logger"
	"github.com/limaJavier/course-timetabling/pkg/metrics"
	"github.com/limaJavier/course-timetabling/pkg/model"
	"github.com/limaJavier/course-timetabling/pkg/sat"

	"go.uber.org/zap"
)

const (
	exitFeasible           = 10
	exitVerificationFailed = 15
	exitInfeasible         = 20
	exitTimeout            = 30
)

func main() {
	// Define arguments
	filePathPtr := flag.String("file", "", "Path to the input file")
	outFilePathPtr := flag.String("out", "", "Path to the file where the output will be written; if empty, it'll be written into the Standard Output")
	configPathPtr := flag.String("config", "", "Path to a configuration file (JSON, YAML or .env); if empty, an optional .env in the working directory is used")
	budgetPtr := flag.Duration("budget", 0, "Time budget of the whole solve, e.g. \"30s\"; if zero, the configured budget is used")
	metricsPathPtr := flag.String("metrics", "", "Path to the file where solve metrics will be written in Prometheus text format")
	opbPathPtr := flag.String("opb", "", "Path to the file where the compiled pseudo-boolean problem will be written in OPB format")
	flag.Parse()

	// Validate arguments
	if *filePathPtr == "" {
		log.Fatal("an input file must be specified")
	} else if *budgetPtr < 0 {
		log.Fatalf("budget cannot be negative: %v", *budgetPtr)
	}

	cfg, err := config.Load(*configPathPtr)
	if err != nil {
		log.Fatalf("cannot load configuration: %v", err)
	}
	if *budgetPtr > 0 {
		cfg.Solver.TimeBudget = *budgetPtr
	}

	zapLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}
	defer zapLogger.Sync()

	// Extract input
	input, err := model.InputFromJson(*filePathPtr)
	if err != nil {
		zapLogger.Fatal("cannot parse input file", zap.String("file", *filePathPtr), zap.Error(err))
	}

	if *opbPathPtr != "" {
		writeOPB(zapLogger, input, cfg.Solver.MaxVariables, *opbPathPtr)
	}

	// Initialize engines
	recorder := metrics.NewRecorder()
	solver := sat.NewPropagationSolver(cfg.Solver.CheckInterval, zapLogger)
	timetabler := model.NewTimetabler(solver, model.TimetablerConfig{
		TimeBudget:   cfg.Solver.TimeBudget,
		MaxVariables: cfg.Solver.MaxVariables,
		Logger:       zapLogger,
		Metrics:      recorder,
	})

	// Build timetable
	timetable, err := timetabler.Build(context.Background(), input)
	if *metricsPathPtr != "" {
		if err := writeMetrics(recorder, *metricsPathPtr); err != nil {
			zapLogger.Fatal("an error occurred while writing metrics", zap.Error(err))
		}
	}

	var noSolution model.NoSolutionError
	if errors.As(err, &noSolution) {
		zapLogger.Sync()
		if noSolution.Status == sat.Timeout {
			os.Exit(exitTimeout)
		}
		os.Exit(exitInfeasible)
	} else if err != nil {
		zapLogger.Fatal("an error occurred during timetable construction", zap.Error(err))
	}

	// Verify timetable correctness
	if !timetabler.Verify(timetable, input) {
		zapLogger.Error("timetable verification failed")
		zapLogger.Sync()
		os.Exit(exitVerificationFailed)
	}

	// Marshal output into json
	timetableJson, err := json.Marshal(timetable)
	if err != nil {
		zapLogger.Fatal("an error occurred while building output json", zap.Error(err))
	}

	// Verify outfile is empty, if so then write the results to the Standard Output
	if *outFilePathPtr == "" {
		fmt.Println(string(timetableJson))
	} else if err := os.WriteFile(*outFilePathPtr, timetableJson, 0666); err != nil {
		zapLogger.Fatal("an error occurred while writing to the output file", zap.Error(err))
	}

	zapLogger.Sync()
	os.Exit(exitFeasible)
}

func writeOPB(zapLogger *zap.Logger, input model.ModelInput, maxVariables uint64, path string) {
	problem, err := model.Compile(input, maxVariables)
	if err != nil {
		zapLogger.Warn("cannot compile problem for OPB export", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, []byte(problem.ToOPB()), 0666); err != nil {
		zapLogger.Fatal("an error occurred while writing the OPB file", zap.Error(err))
	}
}

func writeMetrics(recorder *metrics.Recorder, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create metrics file: %w", err)
	}

	if err := recorder.WriteText(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
