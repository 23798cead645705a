package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	valuationStartedTotal   atomic.Uint64
	valuationCompletedTotal atomic.Uint64
	valuationFailedTotal    atomic.Uint64

	presentationCompletedTotal atomic.Uint64
	presentationFailedTotal    atomic.Uint64
	presentationRetriesTotal   atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	valuationDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncValuationStarted increments the started counter.
func IncValuationStarted() {
	valuationStartedTotal.Add(1)
}

// IncValuationCompleted increments the completed counter.
func IncValuationCompleted() {
	valuationCompletedTotal.Add(1)
}

// IncValuationFailed increments the failed counter.
func IncValuationFailed() {
	valuationFailedTotal.Add(1)
}

// IncPresentationCompleted increments the presentation completed counter.
func IncPresentationCompleted() {
	presentationCompletedTotal.Add(1)
}

// IncPresentationFailed increments the presentation failed counter.
func IncPresentationFailed() {
	presentationFailedTotal.Add(1)
}

// IncPresentationRetry increments the presentation retry counter.
func IncPresentationRetry() {
	presentationRetriesTotal.Add(1)
}

// IncJobsReceived increments the worker jobs-received counter.
func IncJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncJobsDeletedUnrecoverable increments the unrecoverable-message counter.
func IncJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveValuationDurationMs records an analysis duration in milliseconds.
func ObserveValuationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	valuationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "valuation_started_total", "Total valuations started", valuationStartedTotal.Load())
	writeCounter(&buf, "valuation_completed_total", "Total valuations completed", valuationCompletedTotal.Load())
	writeCounter(&buf, "valuation_failed_total", "Total valuations failed", valuationFailedTotal.Load())
	writeCounter(&buf, "presentation_completed_total", "Total presentations completed", presentationCompletedTotal.Load())
	writeCounter(&buf, "presentation_failed_total", "Total presentations failed", presentationFailedTotal.Load())
	writeCounter(&buf, "presentation_retries_total", "Total presentation retries", presentationRetriesTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total worker jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_deleted_unrecoverable_total", "Total unrecoverable messages deleted", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "valuation_duration_ms", "Valuation duration in milliseconds", valuationDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
