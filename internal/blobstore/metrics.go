package blobstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records cache and remote-store activity.
type Metrics interface {
	IncCacheHit()
	IncCacheMiss()
	IncRemoteError(op string)
	AddSwept(files int, bytes int64)
	AddRemoteDeleted(keys int)
}

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) IncCacheHit()          {}
func (NoopMetrics) IncCacheMiss()         {}
func (NoopMetrics) IncRemoteError(string) {}
func (NoopMetrics) AddSwept(int, int64)   {}
func (NoopMetrics) AddRemoteDeleted(int)  {}

// PromMetrics implements Metrics backed by Prometheus counters.
type PromMetrics struct {
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	remoteErrors  *prometheus.CounterVec
	sweptFiles    prometheus.Counter
	sweptBytes    prometheus.Counter
	remoteDeleted prometheus.Counter
}

// NewPromMetrics creates counters under namespace and registers them with reg
// (the default registerer when nil).
func NewPromMetrics(namespace string, reg prometheus.Registerer) *PromMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PromMetrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Remote reads served from the local cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Remote reads that went to the object store",
		}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_errors_total",
			Help:      "Object store failures by operation",
		}, []string{"op"}),
		sweptFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_files_total",
			Help:      "Cache files evicted by sweeps",
		}),
		sweptBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_swept_bytes_total",
			Help:      "Cache bytes evicted by sweeps",
		}),
		remoteDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_deleted_objects_total",
			Help:      "Objects submitted for deferred remote deletion",
		}),
	}
	reg.MustRegister(p.cacheHits, p.cacheMisses, p.remoteErrors, p.sweptFiles, p.sweptBytes, p.remoteDeleted)
	return p
}

func (p *PromMetrics) IncCacheHit() {
	p.cacheHits.Inc()
}

func (p *PromMetrics) IncCacheMiss() {
	p.cacheMisses.Inc()
}

func (p *PromMetrics) IncRemoteError(op string) {
	p.remoteErrors.WithLabelValues(op).Inc()
}

func (p *PromMetrics) AddSwept(files int, bytes int64) {
	p.sweptFiles.Add(float64(files))
	p.sweptBytes.Add(float64(bytes))
}

func (p *PromMetrics) AddRemoteDeleted(keys int) {
	p.remoteDeleted.Add(float64(keys))
}
