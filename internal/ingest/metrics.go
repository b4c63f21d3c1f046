package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for messagesTotal.
const (
	resultStored   = "stored"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

var messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "historian_ingest_messages_total",
	Help: "Cumulative number of MQTT sample messages by result.",
}, []string{"result"})
