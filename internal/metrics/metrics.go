// Package metrics exposes the Prometheus instrumentation shared by every
// subsystem in the server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the runtime exports, constructed once at
// startup and passed by reference into the components that populate it.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsActive   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	DisconnectsByReason *prometheus.CounterVec

	PacketsFramed    prometheus.Counter
	PacketsDropped   *prometheus.CounterVec
	BytesReceived    prometheus.Counter
	BytesSent        prometheus.Counter
	RateLimitDrops   prometheus.Counter

	DispatcherQueueDepth prometheus.Gauge
	DispatcherDropped    prometheus.Counter
	DispatcherOverloaded prometheus.Gauge

	RoomTickDuration prometheus.Histogram
	RoomsActive      prometheus.Gauge
	ObjectsAlive     prometheus.Gauge

	ModifierRecomputes prometheus.Counter

	DBAcquireFailures prometheus.Counter
	DBAcquireSuccess  prometheus.Counter

	MQPublishTotal   *prometheus.CounterVec
	MQSubscribeTotal *prometheus.CounterVec
	MQDriverUp       *prometheus.GaugeVec

	ErrorsByKind *prometheus.CounterVec
}

// New constructs and registers every metric against a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsurv_connections_active", Help: "Currently open sessions.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_connections_total", Help: "Sessions accepted since start.",
		}),
		DisconnectsByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsurv_disconnects_total", Help: "Session disconnects by reason.",
		}, []string{"reason"}),
		PacketsFramed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_packets_framed_total", Help: "Packets successfully framed from sockets.",
		}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsurv_packets_dropped_total", Help: "Packets dropped by reason.",
		}, []string{"reason"}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_bytes_received_total", Help: "Raw bytes read from sockets.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_bytes_sent_total", Help: "Raw bytes written to sockets.",
		}),
		RateLimitDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_rate_limit_drops_total", Help: "Packets dropped by the per-session rate limiter.",
		}),
		DispatcherQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsurv_dispatcher_queue_depth", Help: "Current dispatcher queue length.",
		}),
		DispatcherDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_dispatcher_dropped_total", Help: "Work items dropped because the queue was full.",
		}),
		DispatcherOverloaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsurv_dispatcher_overloaded", Help: "1 if the dispatcher queue is past its soft cap.",
		}),
		RoomTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "vsurv_room_tick_duration_seconds", Help: "Wall time spent per room tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsurv_rooms_active", Help: "Rooms currently running a tick loop.",
		}),
		ObjectsAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vsurv_objects_alive", Help: "Live simulation objects across all rooms.",
		}),
		ModifierRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_modifier_recomputes_total", Help: "ModifierContainer.GetStat cache misses.",
		}),
		DBAcquireFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_db_acquire_failures_total", Help: "DB pool Acquire calls that returned not-ok.",
		}),
		DBAcquireSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vsurv_db_acquire_success_total", Help: "DB pool Acquire calls that returned a connection.",
		}),
		MQPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsurv_mq_publish_total", Help: "Messages published by driver.",
		}, []string{"driver"}),
		MQSubscribeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsurv_mq_messages_received_total", Help: "Messages received by driver.",
		}, []string{"driver"}),
		MQDriverUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vsurv_mq_driver_up", Help: "1 if the driver's connection is currently healthy.",
		}, []string{"driver"}),
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vsurv_errors_total", Help: "Errors observed by apperr.Kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		r.ConnectionsActive, r.ConnectionsTotal, r.DisconnectsByReason,
		r.PacketsFramed, r.PacketsDropped, r.BytesReceived, r.BytesSent, r.RateLimitDrops,
		r.DispatcherQueueDepth, r.DispatcherDropped, r.DispatcherOverloaded,
		r.RoomTickDuration, r.RoomsActive, r.ObjectsAlive,
		r.ModifierRecomputes,
		r.DBAcquireFailures, r.DBAcquireSuccess,
		r.MQPublishTotal, r.MQSubscribeTotal, r.MQDriverUp,
		r.ErrorsByKind,
	)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
