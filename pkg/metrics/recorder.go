package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Recorder holds the solve collectors on a private registry. A nil *Recorder records nothing
type Recorder struct {
	registry   *prometheus.Registry
	solves     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duration   prometheus.Histogram
	variables  prometheus.Histogram
	nodes      prometheus.Counter
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetabling_solves_total",
		Help: "Solves of accepted instances, by terminal status",
	}, []string{"status"})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetabling_rejections_total",
		Help: "Instances rejected before search, by error kind",
	}, []string{"reason"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetabling_solve_duration_seconds",
		Help:    "Wall-clock duration of solves",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	variables := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetabling_variables",
		Help:    "Decision variables per solve",
		Buckets: prometheus.ExponentialBuckets(10, 10, 8),
	})

	nodes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetabling_search_nodes_total",
		Help: "Decisions taken by the search engine",
	})

	registry.MustRegister(solves, rejections, duration, variables, nodes)

	return &Recorder{
		registry:   registry,
		solves:     solves,
		rejections: rejections,
		duration:   duration,
		variables:  variables,
		nodes:      nodes,
	}
}

// ObserveSolve records a solve that went through the search engine
func (r *Recorder) ObserveSolve(status string, duration time.Duration, variables, nodes uint64) {
	if r == nil {
		return
	}
	r.solves.WithLabelValues(status).Inc()
	r.duration.Observe(duration.Seconds())
	r.variables.Observe(float64(variables))
	r.nodes.Add(float64(nodes))
}

func (r *Recorder) ObserveRejection(reason string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(reason).Inc()
}

// WriteText writes every collected metric in the Prometheus text exposition format
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("cannot gather metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("cannot encode metric %v: %w", family.GetName(), err)
		}
	}
	return nil
}
