package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector métricas del servicio en un registry propio
type Collector struct {
	reg *prometheus.Registry

	JourneysStarted   prometheus.Counter
	JourneysFinished  prometheus.Counter
	JourneysCancelled prometheus.Counter
	StopsConfirmed    prometheus.Counter
	RiderAlerts       prometheus.Counter
	RidesConfirmed    prometheus.Counter
	ProximityChecks   *prometheus.CounterVec // kind, within

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	HTTPRequests *prometheus.CounterVec // method, route, status
	HTTPDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		JourneysStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_journeys_started_total",
			Help: "Total journeys started.",
		}),
		JourneysFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_journeys_finished_total",
			Help: "Total journeys completed.",
		}),
		JourneysCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_journeys_cancelled_total",
			Help: "Total journeys cancelled.",
		}),
		StopsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_stops_confirmed_total",
			Help: "Total stop visits confirmed by drivers.",
		}),
		RiderAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_rider_notifications_total",
			Help: "Total approach notifications sent to riders.",
		}),
		RidesConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_rides_confirmed_total",
			Help: "Total rider intents confirmed by proximity.",
		}),
		ProximityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rutatrack_proximity_checks_total",
			Help: "Geofence checks by kind and outcome.",
		}, []string{"kind", "within"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rutatrack_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rutatrack_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rutatrack_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rutatrack_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.JourneysStarted, c.JourneysFinished, c.JourneysCancelled,
		c.StopsConfirmed, c.RiderAlerts, c.RidesConfirmed, c.ProximityChecks,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.HTTPRequests, c.HTTPDuration,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// tracking.Observer

func (c *Collector) JourneyStarted()   { c.JourneysStarted.Inc() }
func (c *Collector) JourneyFinished()  { c.JourneysFinished.Inc() }
func (c *Collector) JourneyCancelled() { c.JourneysCancelled.Inc() }
func (c *Collector) StopConfirmed()    { c.StopsConfirmed.Inc() }
func (c *Collector) RiderNotified()    { c.RiderAlerts.Inc() }
func (c *Collector) RideConfirmed()    { c.RidesConfirmed.Inc() }

func (c *Collector) ProximityChecked(kind string, within bool) {
	w := "false"
	if within {
		w = "true"
	}
	c.ProximityChecks.WithLabelValues(kind, w).Inc()
}

// notify.PublisherMetrics

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
