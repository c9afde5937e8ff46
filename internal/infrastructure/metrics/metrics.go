package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "brokerdesk_socket_connections",
		Help: "Currently open websocket connections.",
	})

	SocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brokerdesk_socket_events_total",
		Help: "Inbound websocket events by type.",
	}, []string{"event"})

	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brokerdesk_messages_persisted_total",
		Help: "Messages durably written, REST and socket paths combined.",
	})
)
