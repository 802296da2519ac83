// Package metrics defines the Prometheus collectors exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dcrodman/pjet/internal/protocol"
)

const namespace = "pjet"

// Collectors holds the bridge's metrics. A nil *Collectors is valid and
// records nothing, so callers never need to check whether metrics are enabled.
type Collectors struct {
	commands      *prometheus.CounterVec
	bytesReceived prometheus.Counter
	bytesSent     prometheus.Counter
	sessions      prometheus.Counter
	disconnects   *prometheus.CounterVec
	batchSize     prometheus.Histogram

	// Resolved once so that counting a command does not hash label values.
	byOpcode map[byte]prometheus.Counter
	unknown  prometheus.Counter
}

// New registers the bridge collectors with registry.
func New(registry prometheus.Registerer) *Collectors {
	factory := promauto.With(registry)

	c := &Collectors{
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed against the debug module, by opcode.",
		}, []string{"opcode"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes read from debug clients.",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Response bytes written to debug clients.",
		}),
		sessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Client connections accepted.",
		}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Client sessions ended, by reason.",
		}, []string{"reason"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_bytes",
			Help:      "Bytes consumed by a single command batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}),
		byOpcode: make(map[byte]prometheus.Counter),
	}

	for _, op := range []byte{
		protocol.OpBlinkOn,
		protocol.OpBlinkOff,
		protocol.OpWrite,
		protocol.OpRead,
		protocol.OpQuit,
	} {
		c.byOpcode[op] = c.commands.WithLabelValues(protocol.OpcodeName(op))
	}
	c.unknown = c.commands.WithLabelValues(protocol.OpcodeName(0))

	return c
}

func (c *Collectors) Command(op byte) {
	if c == nil {
		return
	}
	if counter, ok := c.byOpcode[op]; ok {
		counter.Inc()
		return
	}
	c.unknown.Inc()
}

func (c *Collectors) Received(n int) {
	if c == nil {
		return
	}
	c.bytesReceived.Add(float64(n))
}

func (c *Collectors) Sent(n int) {
	if c == nil {
		return
	}
	c.bytesSent.Add(float64(n))
}

func (c *Collectors) SessionStarted() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

func (c *Collectors) SessionEnded(reason string) {
	if c == nil {
		return
	}
	c.disconnects.WithLabelValues(reason).Inc()
}

func (c *Collectors) Batch(n int) {
	if c == nil {
		return
	}
	c.batchSize.Observe(float64(n))
}
