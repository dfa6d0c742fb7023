package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	BlobsCreated          = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_created_total", Help: "Blob records created at intake"})
	UploadsCompleted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_uploads_completed_total", Help: "Upload-completed signals that won the race"})
	UploadTimeouts        = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_upload_timeouts_total", Help: "Blobs that never received their upload"})
	RecognitionsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_recognitions_succeeded_total", Help: "Recognition runs that persisted labels"})
	RecognitionsFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_recognitions_failed_total", Help: "Recognition runs that ended in a failure status"})
	CallbacksDelivered    = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_callbacks_delivered_total", Help: "Result callbacks answered with 204"})
	CallbacksFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_callbacks_failed_total", Help: "Result callbacks rejected, timed out, or unreachable"})
	LostRaces             = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_lost_conditional_writes_total", Help: "Conditional writes that lost their race (benign)"})
	RateLimitRejects      = prometheus.NewCounter(prometheus.CounterOpts{Name: "blobs_rate_limit_rejects_total", Help: "Intake requests rejected by rate limiter"})
	InFlightRuns          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "blobs_recognition_inflight", Help: "Recognition runs currently executing"})
	ReadyRuns             = prometheus.NewGauge(prometheus.GaugeOpts{Name: "blobs_recognition_ready", Help: "Recognition runs waiting in the queue"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			BlobsCreated,
			UploadsCompleted,
			UploadTimeouts,
			RecognitionsSucceeded,
			RecognitionsFailed,
			CallbacksDelivered,
			CallbacksFailed,
			LostRaces,
			RateLimitRejects,
			InFlightRuns,
			ReadyRuns,
		)
	})
	return promhttp.Handler()
}
