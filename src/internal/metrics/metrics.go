package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "excavator"

// 结果标签
const (
	TraceFound   = "found"
	TraceMissing = "missing"
	TraceError   = "error"

	AnalysisOK     = "ok"
	AnalysisFailed = "failed"
)

// Recorder 流水线的 Prometheus 指标
type Recorder struct {
	registry *prometheus.Registry

	filesScanned   prometheus.Counter
	extractFailed  prometheus.Counter
	traces         *prometheus.CounterVec
	analyses       *prometheus.CounterVec
	reportsWritten prometheus.Counter
	projects       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	lastRun        prometheus.Gauge
}

// NewRecorder 在独立的 registry 上注册指标
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.filesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_scanned_total",
		Help:      "PoC files read by the batch extractor",
	})
	r.extractFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extract_failures_total",
		Help:      "PoC files that could not be turned into evidence records",
	})
	r.traces = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traces_total",
		Help:      "Trace lookups by result",
	}, []string{"provider", "result"})
	r.analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "AI analyses by result",
	}, []string{"provider", "result"})
	r.reportsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_written_total",
		Help:      "Root cause reports written to disk",
	})
	r.projects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projects_total",
		Help:      "Projects processed by final status",
	}, []string{"status"})
	r.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Time spent per pipeline stage",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"stage"})
	r.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last finished run",
	})

	r.registry.MustRegister(
		r.filesScanned, r.extractFailed, r.traces, r.analyses,
		r.reportsWritten, r.projects, r.stageDuration, r.lastRun,
	)
	return r
}

// Registry 指标所在的 registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) FilesScanned(n int) { r.filesScanned.Add(float64(n)) }
func (r *Recorder) ExtractFailures(n int) { r.extractFailed.Add(float64(n)) }
func (r *Recorder) ReportWritten() { r.reportsWritten.Inc() }
func (r *Recorder) Project(status string) { r.projects.WithLabelValues(status).Inc() }
func (r *Recorder) RunFinished(t time.Time) { r.lastRun.Set(float64(t.Unix())) }

// Trace 记录一次 trace 查询结果
func (r *Recorder) Trace(provider, result string) {
	r.traces.WithLabelValues(provider, result).Inc()
}

// Analysis 记录一次 AI 分析结果
func (r *Recorder) Analysis(provider, result string) {
	r.analyses.WithLabelValues(provider, result).Inc()
}

// ObserveStage 记录阶段耗时
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Server /metrics 和 /healthz
type Server struct {
	server *http.Server
}

// NewServer 创建指标服务
func NewServer(addr string, r *Recorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{server: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
}

// Handler 便于测试直接调用
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Serve 阻塞直到 Shutdown
func (s *Server) Serve() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
