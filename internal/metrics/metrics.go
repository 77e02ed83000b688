// Package metrics exposes optimizer progress as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caevo"

// Collector groups the optimizer metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	generations        prometheus.Counter
	evaluations        *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	episodeSteps       prometheus.Histogram
	bestFitness        prometheus.Gauge
	meanFitness        prometheus.Gauge
	runs               *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them on the process-wide endpoint.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		generations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Completed GA generations.",
		}),
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Genome fitness evaluations by result.",
		}, []string{"result"}),
		evaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one genome evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		episodeSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_steps",
			Help:      "Mean environment steps per episode of one evaluation.",
			Buckets:   []float64{10, 25, 50, 100, 200, 300, 400, 500},
		}),
		bestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best fitness of the latest generation.",
		}),
		meanFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_fitness",
			Help:      "Mean fitness of the latest generation.",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Optimizer runs by outcome.",
		}, []string{"outcome"}),
	}
}

func (c *Collector) ObserveEvaluation(d time.Duration, meanSteps float64, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.evaluations.WithLabelValues("error").Inc()
		return
	}
	c.evaluations.WithLabelValues("ok").Inc()
	c.evaluationDuration.Observe(d.Seconds())
	if meanSteps > 0 {
		c.episodeSteps.Observe(meanSteps)
	}
}

func (c *Collector) ObserveGeneration(best, mean float64) {
	if c == nil {
		return
	}
	c.generations.Inc()
	c.bestFitness.Set(best)
	c.meanFitness.Set(mean)
}

func (c *Collector) ObserveRun(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.runs.WithLabelValues("failed").Inc()
		return
	}
	c.runs.WithLabelValues("completed").Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
