package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is the historian's topic root when none is configured.
const DefaultTopicPrefix = "graylogic/historian"

// Topics provides builders for historian MQTT topics under a prefix.
// The zero value uses DefaultTopicPrefix.
//
//	topics := mqtt.Topics{Prefix: "site1/historian"}
//	topics.PointValue(42)
//	// Returns: "site1/historian/point/42/value"
type Topics struct {
	Prefix string
}

// root returns the configured prefix without a trailing slash.
func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// PointValue returns the topic a point's samples are published on.
//
// Example: graylogic/historian/point/42/value
func (t Topics) PointValue(pointID int) string {
	return fmt.Sprintf("%s/point/%d/value", t.root(), pointID)
}

// AllPointValues returns a pattern matching every point's sample topic.
//
// Pattern: graylogic/historian/point/+/value
func (t Topics) AllPointValues() string {
	return t.root() + "/point/+/value"
}

// Status returns the historian's retained online/offline status topic.
//
// Example: graylogic/historian/status
func (t Topics) Status() string {
	return t.root() + "/status"
}

// Stats returns the topic store statistics are published on.
//
// Example: graylogic/historian/stats
func (t Topics) Stats() string {
	return t.root() + "/stats"
}

// ParsePointValue extracts the point id from a sample topic.
// ok is false when topic is not a sample topic under this prefix or the
// id is not a positive integer.
func (t Topics) ParsePointValue(topic string) (pointID int, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/point/")
	if !found {
		return 0, false
	}
	idPart, found := strings.CutSuffix(rest, "/value")
	if !found || idPart == "" || strings.Contains(idPart, "/") {
		return 0, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
