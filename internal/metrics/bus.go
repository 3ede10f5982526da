package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quintans/eventhub/internal/lib/bus"
)

const namespace = "eventhub"

var _ bus.Observer = (*BusObserver)(nil)

// BusObserver exports the bus activity as Prometheus metrics.
type BusObserver struct {
	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	pruned      prometheus.Counter
	subscribers prometheus.Gauge
}

// NewBusObserver registers the bus metrics in reg. A nil reg uses the default registerer.
func NewBusObserver(reg prometheus.Registerer) *BusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &BusObserver{
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Total number of messages published, by message kind",
		}, []string{"kind"}),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivered_total",
			Help:      "Total number of handle method invocations, by message kind",
		}, []string{"kind"}),
		pruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "pruned_total",
			Help:      "Total number of collected subscribers removed from the bus",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscribers",
			Help:      "Number of registered subscribers",
		}),
	}
}

func (o *BusObserver) Published(kind string) {
	o.published.WithLabelValues(orUnknown(kind)).Inc()
}

func (o *BusObserver) Delivered(kind string) {
	o.delivered.WithLabelValues(orUnknown(kind)).Inc()
}

func (o *BusObserver) Pruned(count int) {
	o.pruned.Add(float64(count))
}

func (o *BusObserver) Subscribers(count int) {
	o.subscribers.Set(float64(count))
}

func orUnknown(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}
