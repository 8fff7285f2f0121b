package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hlextract"

var (
    registry = prometheus.NewRegistry()
    once     sync.Once

    filesProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "files_processed_total",
            Help:      "Input files processed by result",
        },
        []string{"result"},
    )

    fileDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "file_duration_seconds",
            Help:      "Wall time spent extracting one input file",
            Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
        },
    )

    pagesProcessed = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "pages_processed_total",
            Help:      "Pages scanned for highlights",
        },
    )

    regionsEmitted = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "regions_emitted_total",
            Help:      "Extraction units emitted by kind (text, image)",
        },
        []string{"kind"},
    )

    streamsMasked = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "content_streams_total",
            Help:      "Page content streams inspected by the mask step, by outcome",
        },
        []string{"outcome"},
    )

    jobsProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "jobs_processed_total",
            Help:      "Queued jobs handled by result (success, failed, retry, requeued, cancelled, malformed)",
        },
        []string{"result"},
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: namespace,
            Name:      "queue_depth",
            Help:      "Queue depth by type (stream, delayed, dlq)",
        },
        []string{"type"},
    )
)

// Init registers collectors. Safe to call more than once.
func Init() {
    once.Do(func() {
        registry.MustRegister(
            filesProcessed, fileDuration, pagesProcessed, regionsEmitted,
            streamsMasked, jobsProcessed, queueDepth,
            collectors.NewGoCollector(),
        )
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler {
    Init()
    return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps all metrics in the text exposition format, for the
// node_exporter textfile collector after a CLI run.
func WriteTextfile(path string) error {
    Init()
    return prometheus.WriteToTextfile(path, registry)
}

func ObserveFile(result string, dur time.Duration) {
    filesProcessed.WithLabelValues(result).Inc()
    if dur > 0 { fileDuration.Observe(dur.Seconds()) }
}

func AddPages(n int)              { pagesProcessed.Add(float64(n)) }
func AddRegions(kind string, n int) { regionsEmitted.WithLabelValues(kind).Add(float64(n)) }

func ObserveMask(highlighted, dropped, faulty int) {
    streamsMasked.WithLabelValues("highlighted").Add(float64(highlighted))
    streamsMasked.WithLabelValues("dropped").Add(float64(dropped))
    streamsMasked.WithLabelValues("faulty").Add(float64(faulty))
}

func IncJob(result string)               { jobsProcessed.WithLabelValues(result).Inc() }
func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
