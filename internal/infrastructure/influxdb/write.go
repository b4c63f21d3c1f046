package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// pointValueMeasurement is the measurement mirrored point values are
// written to.
const pointValueMeasurement = "point_values"

// WritePointValue queues one persisted point value.
//
// The field key is the data type name, so each field keeps one type
// across points: float for numeric, bool for binary, integer for
// multistate, string for alphanumeric and the blob id for image. Nil
// values and writes after Close are dropped.
func (c *Client) WritePointValue(pointID int, dataType string, value any, ts time.Time) {
	if value == nil || c.closed.Load() {
		return
	}

	point := write.NewPointWithMeasurement(pointValueMeasurement).
		AddTag("point_id", strconv.Itoa(pointID)).
		AddTag("data_type", dataType).
		AddField(dataType, value).
		SetTime(ts)
	c.writeAPI.WritePoint(point)
}
