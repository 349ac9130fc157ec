// Package metrics exposes Prometheus counters for the assistant's queues,
// learn sessions and message traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kavach"

var (
	// LearnSessions counts finished learn sessions by outcome
	// (success, failure, cancelled, error).
	LearnSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ir",
		Name:      "learn_sessions_total",
		Help:      "IR learn sessions by outcome.",
	}, []string{"outcome"})

	// IRTransmits counts transmit requests by result
	// (sent, dropped, missing, failed).
	IRTransmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ir",
		Name:      "transmit_requests_total",
		Help:      "IR transmit requests by result.",
	}, []string{"result"})

	// Playback counts playback requests by kind and result
	// (played, dropped, missing, failed, stopped).
	Playback = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audio",
		Name:      "playback_requests_total",
		Help:      "Audio playback requests by kind and result.",
	}, []string{"kind", "result"})

	// MQTTMessages counts messages by direction (in, out) and topic.
	MQTTMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mqtt",
		Name:      "messages_total",
		Help:      "MQTT messages by direction and topic.",
	}, []string{"direction", "topic"})

	// Commands counts dispatched voice and button commands.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "commands_total",
		Help:      "Dispatched commands by name.",
	}, []string{"command"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
