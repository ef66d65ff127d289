package courses

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/course-studio/backend/internal/generator"
)

const (
	pipelineOutline     = "outline"
	pipelineLessonCards = "lesson_cards"
	pipelineSingleCard  = "single_card"
	pipelinePlan        = "card_plan"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
	tokens    *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "course_studio",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Pipeline runs by pipeline, generation mode and outcome.",
		}, []string{"pipeline", "mode", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "course_studio",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Pipeline run duration.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"pipeline", "mode"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "course_studio",
			Subsystem: "generation",
			Name:      "fallback_extractions_total",
			Help:      "History-channel fallback attempts by pipeline and result.",
		}, []string{"pipeline", "result"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "course_studio",
			Subsystem: "generation",
			Name:      "tokens_total",
			Help:      "Backend tokens reported per call, by pipeline and direction.",
		}, []string{"pipeline", "direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.fallbacks, m.tokens)
	}
	return m
}

func (m *Metrics) observeRun(pipeline string, mode generator.Mode, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(pipeline, string(mode), outcome(err)).Inc()
	m.duration.WithLabelValues(pipeline, string(mode)).Observe(d.Seconds())
}

func (m *Metrics) observeFallback(pipeline string, ok bool) {
	if m == nil {
		return
	}
	result := "recovered"
	if !ok {
		result = "empty"
	}
	m.fallbacks.WithLabelValues(pipeline, result).Inc()
}

func (m *Metrics) observeTokens(pipeline string, out *generator.LLMResponse) {
	if m == nil || out == nil {
		return
	}
	if out.PromptTokens > 0 {
		m.tokens.WithLabelValues(pipeline, "prompt").Add(float64(out.PromptTokens))
	}
	if out.OutputTokens > 0 {
		m.tokens.WithLabelValues(pipeline, "output").Add(float64(out.OutputTokens))
	}
}

func outcome(err error) string {
	var (
		ce *generator.ConfigurationError
		sm *generator.SchemaMismatchError
		iv *generator.InvariantViolationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &ce):
		return "config_error"
	case errors.As(err, &sm):
		return "schema_mismatch"
	case errors.As(err, &iv):
		return "invariant_violation"
	case errors.Is(err, generator.ErrNoOutput):
		return "no_output"
	}
	return "error"
}
