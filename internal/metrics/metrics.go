package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/bifrost/internal/broadcast"
	"github.com/jpalmerr/bifrost/internal/queue"
)

const namespace = "bifrost"

// Sources provides the live values behind each metric. Nil functions are
// skipped.
type Sources struct {
	Queue         func() queue.Stats
	Broadcaster   func() broadcast.Stats
	Observers     func() int
	HistoryTopics func() int

	// ObserverDrops counts batches skipped for observers that fell behind.
	ObserverDrops func() uint64

	MQTTConnected func() bool
	MQTTReceived  func() uint64
}

// NewRegistry creates a registry with the Go runtime and process collectors
// already registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Register adds the pipeline metrics backed by src to reg.
func Register(reg prometheus.Registerer, src Sources) error {
	var cs []prometheus.Collector

	if src.Queue != nil {
		cs = append(cs,
			counterFunc("queue_enqueued_total", "Events admitted into the ingestion queue.",
				func() float64 { return float64(src.Queue().Enqueued) }),
			counterFunc("queue_dropped_total", "Events discarded by the backpressure policy.",
				func() float64 { return float64(src.Queue().Dropped) }),
			gaugeFunc("queue_length", "Events currently buffered in the ingestion queue.",
				func() float64 { return float64(src.Queue().Len) }),
			gaugeFunc("queue_capacity", "Maximum number of buffered events.",
				func() float64 { return float64(src.Queue().Capacity) }),
		)
	}

	if src.Broadcaster != nil {
		cs = append(cs,
			counterFunc("samples_recorded_total", "Samples classified and written to history.",
				func() float64 { return float64(src.Broadcaster().SamplesRecorded) }),
			counterFunc("batches_emitted_total", "Coalesced batches handed to observers.",
				func() float64 { return float64(src.Broadcaster().BatchesEmitted) }),
			counterFunc("batch_entries_total", "Entries across all emitted batches.",
				func() float64 { return float64(src.Broadcaster().EntriesEmitted) }),
			counterFunc("delivery_failures_total", "Batches that reached no observer.",
				func() float64 { return float64(src.Broadcaster().DeliveryFailures) }),
		)
	}

	if src.Observers != nil {
		cs = append(cs, gaugeFunc("observers", "Connected observers.",
			func() float64 { return float64(src.Observers()) }))
	}

	if src.HistoryTopics != nil {
		cs = append(cs, gaugeFunc("history_topics", "Topics with recorded history.",
			func() float64 { return float64(src.HistoryTopics()) }))
	}

	if src.ObserverDrops != nil {
		cs = append(cs, counterFunc("observer_batches_dropped_total", "Batches skipped for observers that fell behind.",
			func() float64 { return float64(src.ObserverDrops()) }))
	}

	if src.MQTTConnected != nil {
		cs = append(cs, gaugeFunc("mqtt_connected", "Whether the MQTT source holds a broker session (1) or not (0).",
			func() float64 {
				if src.MQTTConnected() {
					return 1
				}
				return 0
			}))
	}

	if src.MQTTReceived != nil {
		cs = append(cs, counterFunc("mqtt_messages_received_total", "PUBLISH packets received from the broker.",
			func() float64 { return float64(src.MQTTReceived()) }))
	}

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metric: %w", err)
		}
	}
	return nil
}

// Handler returns an HTTP handler serving the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func counterFunc(name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

func gaugeFunc(name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}
