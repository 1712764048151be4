package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProducerMessages counts publish attempts by topic and outcome ("ok", "error").
var ProducerMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_producer_messages_total",
		Help: "Kafka publish attempts by topic and outcome",
	},
	[]string{"topic", "outcome"},
)
