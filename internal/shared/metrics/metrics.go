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
	jobsSubmittedTotal atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	jobsCancelledTotal atomic.Uint64
	pollTicksTotal     atomic.Uint64
	pollDroppedTotal   atomic.Uint64

	jobDuration = newHistogram([]float64{1000, 3000, 6000, 15000, 30000, 60000, 120000, 300000})
)

// IncJobSubmitted increments the submitted counter.
func IncJobSubmitted() {
	jobsSubmittedTotal.Add(1)
}

// IncJobCompleted increments the completed counter.
func IncJobCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncJobFailed increments the failed counter.
func IncJobFailed() {
	jobsFailedTotal.Add(1)
}

// IncJobCancelled increments the cancelled counter.
func IncJobCancelled() {
	jobsCancelledTotal.Add(1)
}

// IncPollTick counts one status request issued by the poller.
func IncPollTick() {
	pollTicksTotal.Add(1)
}

// IncPollDropped counts one status request that failed at the transport level.
func IncPollDropped() {
	pollDroppedTotal.Add(1)
}

// ObserveJobDurationMs records submit-to-terminal time in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
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
	writeCounter(&buf, "tailoring_jobs_submitted_total", "Total tailoring jobs accepted by the remote service", jobsSubmittedTotal.Load())
	writeCounter(&buf, "tailoring_jobs_completed_total", "Total tailoring jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "tailoring_jobs_failed_total", "Total tailoring jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "tailoring_jobs_cancelled_total", "Total tailoring jobs abandoned locally", jobsCancelledTotal.Load())
	writeCounter(&buf, "tailoring_poll_ticks_total", "Total status requests issued", pollTicksTotal.Load())
	writeCounter(&buf, "tailoring_poll_ticks_dropped_total", "Total status requests dropped by the transport", pollDroppedTotal.Load())
	writeHistogram(&buf, "tailoring_job_duration_ms", "Submit to terminal state in milliseconds", jobDuration.Snapshot())
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
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
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
