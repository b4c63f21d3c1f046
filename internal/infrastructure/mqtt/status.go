package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Historian states published on the retained status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Reasons attached to an offline status.
const (
	reasonShutdown   = "graceful_shutdown"
	reasonDisconnect = "unexpected_disconnect"
)

// willQoS is the QoS of the broker-published offline status.
const willQoS = 1

// Status is the retained message on the status topic. Dashboards use it
// to tell a stopped historian from a crashed one.
type Status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload encodes a status message stamped at now.
func statusPayload(state, reason, clientID string, now time.Time) []byte {
	//nolint:errcheck,errchkjson // Status has only string fields
	payload, _ := json.Marshal(Status{
		Status:    state,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	return payload
}

// configureWill registers the offline status the broker publishes when
// the historian drops off without a clean disconnect. Its timestamp is
// the connect time.
func configureWill(opts *pahomqtt.ClientOptions, topic, clientID string) {
	opts.SetBinaryWill(topic, statusPayload(StatusOffline, reasonDisconnect, clientID, time.Now()), willQoS, true)
}
