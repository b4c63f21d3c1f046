package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/config"
)

// Client is the historian's connection to the site broker.
//
// It keeps the retained status topic current (online while connected,
// offline after Close, the broker-published will after a crash) and
// re-sends every ingest subscription in one request after a reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	// subs maps each subscribed filter to its QoS. Handlers live in the
	// paho router, which survives reconnects.
	subs  map[string]byte
	subMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging surface used for connection events and handler
// failures. It is satisfied by *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler is called for each message received on a subscribed
// filter. topic is the concrete topic the message arrived on.
//
// Handlers run on paho's delivery goroutine and should not block. A
// returned error is logged; the message is acknowledged regardless.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker configured in cfg and publishes the online
// status. Topics are rooted at cfg.Ingest.TopicPrefix.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker is not reachable in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.Ingest.TopicPrefix},
		subs:   make(map[string]byte),
		logger: noopLogger{},
	}

	opts := buildClientOptions(cfg)
	configureWill(opts, c.topics.Status(), cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.getLogger().Info("MQTT reconnecting", "broker", c.brokerAddr())
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect handler runs asynchronously; mark the state now so the
	// caller can subscribe straight away.
	c.connected.Store(true)
	return c, nil
}

// onConnect runs on the initial connect and on every reconnect.
func (c *Client) onConnect() {
	c.connected.Store(true)
	c.publishStatus(StatusOnline, "")
	c.resubscribe()
}

// onConnectionLost runs when the broker connection drops.
func (c *Client) onConnectionLost(err error) {
	c.connected.Store(false)
	c.getLogger().Warn("MQTT connection lost", "broker", c.brokerAddr(), "error", err)
}

// resubscribe sends every tracked filter in one SUBSCRIBE. It runs after a
// reconnect since the clean session drops subscriptions on the broker.
func (c *Client) resubscribe() {
	filters := c.filters()
	if len(filters) == 0 {
		return
	}

	log := c.getLogger()
	if err := await(c.paho.SubscribeMultiple(filters, nil), defaultPublishTimeout, ErrSubscribeFailed); err != nil {
		log.Error("MQTT resubscribe failed", "filters", len(filters), "error", err)
		return
	}
	log.Info("MQTT subscriptions restored", "filters", len(filters))
}

// filters returns a copy of the tracked subscriptions.
func (c *Client) filters() map[string]byte {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	out := make(map[string]byte, len(c.subs))
	for topic, qos := range c.subs {
		out[topic] = qos
	}
	return out
}

// publishStatus publishes a retained status message without waiting for
// the acknowledgement.
func (c *Client) publishStatus(state, reason string) pahomqtt.Token {
	payload := statusPayload(state, reason, c.cfg.Broker.ClientID, time.Now())
	return c.paho.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload)
}

// Close publishes the offline status and disconnects. A client that never
// connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(StatusOffline, reasonShutdown).WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// HealthCheck reports ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnectionOpen()
}

// SetLogger sets the logger for connection events and handler failures.
// A nil logger discards them.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

func (c *Client) brokerAddr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}

// route adapts a MessageHandler to paho, recovering panics so one bad
// message cannot stop delivery.
func (c *Client) route(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}

// await waits for token and wraps a timeout or broker error in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
