package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
)

// defaultQoS is used when Config.QoS is zero.
const defaultQoS byte = 1

// Subscriber is the MQTT surface the ingester needs.
// It is satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Store is the point value store surface the ingester writes to.
// It is satisfied by *pointvalue.Store.
type Store interface {
	InsertSync(ctx context.Context, pv pointvalue.PointValue) (pointvalue.PointValue, bool, error)
	InsertAsync(ctx context.Context, pv pointvalue.PointValue) error
	GetPoint(ctx context.Context, pointID int) (*pointvalue.Point, error)
	RegisterPoint(ctx context.Context, p pointvalue.Point) error
}

// Logger is the logging surface used by the ingester.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config controls what the ingester subscribes to.
type Config struct {
	Topics mqtt.Topics
	QoS    byte
}

// Ingester records MQTT point samples in a Store.
//
// Thread Safety:
//   - Messages may be handled concurrently; the point cache is guarded.
type Ingester struct {
	sub    Subscriber
	store  Store
	topics mqtt.Topics
	qos    byte
	logger Logger
	now    func() time.Time

	// points caches the data type of every point already registered.
	points   map[int]pointvalue.DataType
	pointsMu sync.Mutex

	ctx     context.Context //nolint:containedctx // message handlers have no context of their own
	started bool
	startMu sync.Mutex
}

// New creates an Ingester. Call Start to subscribe.
func New(sub Subscriber, store Store, cfg Config) *Ingester {
	qos := cfg.QoS
	if qos == 0 {
		qos = defaultQoS
	}
	return &Ingester{
		sub:    sub,
		store:  store,
		topics: cfg.Topics,
		qos:    qos,
		logger: noopLogger{},
		now:    time.Now,
		points: make(map[int]pointvalue.DataType),
		ctx:    context.Background(),
	}
}

// SetLogger sets the logger for ingestion events.
func (in *Ingester) SetLogger(logger Logger) {
	if logger != nil {
		in.logger = logger
	}
}

// Start subscribes to every point sample topic. ctx bounds the store
// writes made by message handlers.
func (in *Ingester) Start(ctx context.Context) error {
	in.startMu.Lock()
	defer in.startMu.Unlock()

	in.ctx = ctx
	topic := in.topics.AllPointValues()
	if err := in.sub.Subscribe(topic, in.qos, in.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	in.started = true
	in.logger.Info("ingesting point samples", "topic", topic)
	return nil
}

// Stop unsubscribes from the sample topics.
func (in *Ingester) Stop() error {
	in.startMu.Lock()
	defer in.startMu.Unlock()

	if !in.started {
		return ErrNotStarted
	}
	in.started = false
	return in.sub.Unsubscribe(in.topics.AllPointValues())
}

// handleMessage decodes one sample and stores it.
func (in *Ingester) handleMessage(topic string, payload []byte) error {
	err := in.ingest(topic, payload)
	switch {
	case err == nil:
		messagesTotal.WithLabelValues(resultStored).Inc()
	case errors.Is(err, ErrInvalidTopic), errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrTypeMismatch):
		messagesTotal.WithLabelValues(resultRejected).Inc()
	default:
		messagesTotal.WithLabelValues(resultFailed).Inc()
	}
	return err
}

func (in *Ingester) ingest(topic string, payload []byte) error {
	pointID, ok := in.topics.ParsePointValue(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		return err
	}
	pv, err := msg.PointValue(pointID, in.now().UnixMilli())
	if err != nil {
		return err
	}

	ctx := in.context()
	if err := in.ensurePoint(ctx, pointID, msg, pv.Value.DataType()); err != nil {
		return err
	}

	if msg.Sync {
		_, confirmed, err := in.store.InsertSync(ctx, pv)
		if err != nil {
			return fmt.Errorf("storing point %d sample: %w", pointID, err)
		}
		if !confirmed {
			in.logger.Warn("sample buffered, not yet confirmed", "point_id", pointID, "ts", pv.Time)
		}
		return nil
	}

	if err := in.store.InsertAsync(ctx, pv); err != nil {
		return fmt.Errorf("storing point %d sample: %w", pointID, err)
	}
	in.logger.Debug("sample recorded", "point_id", pointID, "type", msg.Type, "ts", pv.Time)
	return nil
}

func (in *Ingester) context() context.Context {
	in.startMu.Lock()
	defer in.startMu.Unlock()
	return in.ctx
}

// ensurePoint registers pointID on first sight and rejects samples whose
// type differs from the registered one. Metadata in msg updates an
// existing registration.
func (in *Ingester) ensurePoint(ctx context.Context, pointID int, msg Message, dt pointvalue.DataType) error {
	in.pointsMu.Lock()
	known, cached := in.points[pointID]
	in.pointsMu.Unlock()

	if cached && msg.XID == "" && msg.Name == "" {
		return checkType(pointID, known, dt)
	}

	existing, err := in.store.GetPoint(ctx, pointID)
	if err != nil {
		return fmt.Errorf("looking up point %d: %w", pointID, err)
	}

	p := pointvalue.Point{ID: pointID, XID: msg.XID, Name: msg.Name, DataType: dt}
	if existing != nil {
		if err := checkType(pointID, existing.DataType, dt); err != nil {
			return err
		}
		if (msg.XID == "" || msg.XID == existing.XID) && (msg.Name == "" || msg.Name == existing.Name) {
			in.cachePoint(pointID, existing.DataType)
			return nil
		}
		if p.XID == "" {
			p.XID = existing.XID
		}
		if p.Name == "" {
			p.Name = existing.Name
		}
		if existing.DataType != pointvalue.DataTypeUnknown {
			p.DataType = existing.DataType
		}
	}

	if err := in.store.RegisterPoint(ctx, p); err != nil {
		return fmt.Errorf("registering point %d: %w", pointID, err)
	}
	if existing == nil {
		in.logger.Info("point registered", "point_id", pointID, "type", dt.String())
	}
	in.cachePoint(pointID, p.DataType)
	return nil
}

func (in *Ingester) cachePoint(pointID int, dt pointvalue.DataType) {
	in.pointsMu.Lock()
	in.points[pointID] = dt
	in.pointsMu.Unlock()
}

func checkType(pointID int, registered, got pointvalue.DataType) error {
	if registered == pointvalue.DataTypeUnknown || registered == got {
		return nil
	}
	return fmt.Errorf("%w: point %d is %s, sample is %s", ErrTypeMismatch, pointID, registered, got)
}
