package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var itemsQueued = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "ingest_items_queued",
	Help: "Items waiting in the ingestion queue",
})

var itemsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_items_finished_total",
	Help: "Items that reached a terminal status, labelled by status",
}, []string{"status"})

var stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ingest_stage_duration_seconds",
	Help:    "Time spent per pipeline stage",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 300},
}, []string{"stage"})

var ocrPagesConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ocr_pages_consumed_total",
	Help: "OCR pages counted against the free-tier quota",
})

var embedBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "embed_batch_latency_seconds",
	Help:    "Latency of embedding provider batch calls",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
})

var searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "search_duration_seconds",
	Help:    "End-to-end search latency, labelled by mode",
	Buckets: []float64{.01, .05, .1, .25, .5, 1, 2},
}, []string{"mode"})

func IncItemsQueued() { itemsQueued.Inc() }
func DecItemsQueued() { itemsQueued.Dec() }

func ItemFinished(status string) { itemsFinished.WithLabelValues(status).Inc() }

func ObserveStage(stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func AddOcrPages(pages int) { ocrPagesConsumed.Add(float64(pages)) }

func ObserveEmbedBatch(elapsed time.Duration) {
	embedBatchLatency.Observe(elapsed.Seconds())
}

func ObserveSearch(mode string, elapsed time.Duration) {
	searchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}
