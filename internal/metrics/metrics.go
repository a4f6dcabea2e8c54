package metrics

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route pattern, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )

    // Runs counts finished GA runs by instance and final status
    Runs = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "ga_runs_total", Help: "Finished GA runs by instance and status."},
        []string{"instance", "status"},
    )
    // RunsActive is the number of runs currently evolving
    RunsActive = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ga_runs_active", Help: "GA runs in progress."})
    // RunDuration records wall time per run in seconds
    RunDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "ga_run_duration_seconds", Help: "GA run wall time in seconds.", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}},
        []string{"instance"},
    )
    // Generations counts evolved generations per instance
    Generations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "ga_generations_total", Help: "Generations evolved."},
        []string{"instance"},
    )
    // BestFitness is the last reported best-feasible fitness per instance
    BestFitness = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "ga_best_fitness", Help: "Best feasible fitness of the latest run per instance."},
        []string{"instance"},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        Registry.MustRegister(Runs, RunsActive, RunDuration, Generations, BestFitness)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// Handler exposes Registry for scraping.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
