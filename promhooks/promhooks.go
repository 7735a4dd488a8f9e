// Package promhooks implements flashcache.Hooks with Prometheus
// counters. Keys are not used as label values (unbounded cardinality);
// events are counted per category only.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	fc "github.com/unkn0wn-root/flashcache"
	"github.com/unkn0wn-root/flashcache/store"
)

type Hooks struct {
	selfHeals      prometheus.Counter
	nullMarkers    prometheus.Counter
	staleServed    prometheus.Counter
	rebuildFailed  prometheus.Counter
	mutexExhausted prometheus.Counter
	admitRejected  *prometheus.CounterVec
	queueFull      prometheus.Counter
	orderDropped   *prometheus.CounterVec
	orderPersisted prometheus.Counter
}

var _ fc.Hooks = (*Hooks)(nil)

// New builds the hook set and registers its collectors with reg.
func New(reg prometheus.Registerer) *Hooks {
	h := &Hooks{
		selfHeals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_self_heals_total",
			Help: "Corrupt or undecodable cache entries deleted on read",
		}),
		nullMarkers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_null_markers_total",
			Help: "Null markers written after a confirmed source absence",
		}),
		staleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_stale_served_total",
			Help: "Reads answered with a logically-expired payload",
		}),
		rebuildFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_rebuild_failures_total",
			Help: "Async cache rebuild jobs that failed",
		}),
		mutexExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_mutex_exhausted_total",
			Help: "Mutex-strategy reads that gave up after all retries",
		}),
		admitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashcache_admit_rejected_total",
			Help: "Sale admission attempts turned away",
		}, []string{"code"}),
		queueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_order_queue_full_total",
			Help: "Admitted orders rejected because the hand-off queue was full",
		}),
		orderDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashcache_orders_dropped_total",
			Help: "Admitted orders dropped before durable commit",
		}, []string{"reason"}),
		orderPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashcache_orders_persisted_total",
			Help: "Orders committed to durable storage",
		}),
	}
	reg.MustRegister(
		h.selfHeals, h.nullMarkers, h.staleServed, h.rebuildFailed,
		h.mutexExhausted, h.admitRejected, h.queueFull, h.orderDropped,
		h.orderPersisted,
	)
	return h
}

func (h *Hooks) SelfHeal(string)             { h.selfHeals.Inc() }
func (h *Hooks) NullMarkerSet(string)        { h.nullMarkers.Inc() }
func (h *Hooks) StaleServed(string)          { h.staleServed.Inc() }
func (h *Hooks) RebuildFailed(string, error) { h.rebuildFailed.Inc() }
func (h *Hooks) MutexExhausted(string)       { h.mutexExhausted.Inc() }
func (h *Hooks) AdmitRejected(_ string, code store.AdmitCode) {
	h.admitRejected.WithLabelValues(code.String()).Inc()
}
func (h *Hooks) QueueFull(string) { h.queueFull.Inc() }
func (h *Hooks) OrderDropped(_, reason string) {
	h.orderDropped.WithLabelValues(reason).Inc()
}
func (h *Hooks) OrderPersisted(uint64) { h.orderPersisted.Inc() }
