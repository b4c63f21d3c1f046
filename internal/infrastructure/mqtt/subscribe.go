package mqtt

import (
	"fmt"
)

// Subscribe routes messages matching filter to handler and tracks the
// filter so it is re-sent after a reconnect.
//
// Filters may use the + and # wildcards, e.g. Topics.AllPointValues().
// Subscribing to a filter again replaces its handler.
//
// Parameters:
//   - filter: Topic filter to subscribe to
//   - qos: Maximum QoS for delivered messages (0, 1, or 2)
//   - handler: Called for each message
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrSubscribeFailed
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validateFilter(filter, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subs[filter] = qos
	c.subMu.Unlock()

	if err := await(c.paho.Subscribe(filter, qos, c.route(handler)), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		c.untrack(filter)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for filter. Messages already in flight may
// still reach the handler.
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected or ErrUnsubscribeFailed
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.untrack(filter)
	return await(c.paho.Unsubscribe(filter), defaultPublishTimeout, ErrUnsubscribeFailed)
}

func (c *Client) untrack(filter string) {
	c.subMu.Lock()
	delete(c.subs, filter)
	c.subMu.Unlock()
}

// validateFilter checks a subscription filter and QoS.
func validateFilter(filter string, qos byte) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
