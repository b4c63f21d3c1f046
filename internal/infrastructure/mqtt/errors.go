package mqtt

import "errors"

// Errors returned by the MQTT client. Broker and transport failures wrap
// one of these so callers can use errors.Is.
var (
	// ErrNotConnected indicates the broker connection is down. Ingest
	// subscriptions and status publishes both fail with it.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed indicates the broker did not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed indicates the broker rejected or did not
	// acknowledge a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed indicates the broker did not acknowledge an
	// unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS indicates a QoS level other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic indicates an empty topic, or a wildcard in a topic
	// that is published to.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrPayloadTooLarge indicates a publish above the payload limit.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
