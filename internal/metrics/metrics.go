package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const Job = "drive_ocr"

// Recorder collects per-run counters on a private registry.
type Recorder struct {
	reg      *prometheus.Registry
	files    *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveocr",
			Name:      "files_total",
			Help:      "Files handled by the run, by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driveocr",
			Name:      "stage_failures_total",
			Help:      "Per-file failures, by the stage that failed.",
		}, []string{"stage"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "driveocr",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
	r.reg.MustRegister(r.files, r.failures, r.duration)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// File counts one file with its outcome (processed, skipped, failed).
func (r *Recorder) File(outcome string) { r.files.WithLabelValues(outcome).Inc() }

// StageFailure counts a failure at stage.
func (r *Recorder) StageFailure(stage string) { r.failures.WithLabelValues(stage).Inc() }

func (r *Recorder) RunDuration(d time.Duration) { r.duration.Set(d.Seconds()) }

// Push sends the registry to a Pushgateway under the drive_ocr job.
func (r *Recorder) Push(ctx context.Context, url string) error {
	if err := push.New(url, Job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
