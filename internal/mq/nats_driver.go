// NATS-backed Fast driver, grounded on the teacher's go-server/pkg/nats
// Client (connection-event handlers, subject->subscription map guarded by
// a mutex), adapted to the Driver interface and to arbitrary caller-chosen
// subjects instead of the teacher's fixed Odin subject builders.
package mq

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSDriver is the Fast-QoS MessageDriver: NATS pub/sub, no delivery
// guarantee beyond best-effort.
type NATSDriver struct {
	conn   *nats.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewNATSDriver connects to url and wires connection-lifecycle logging the
// way the teacher's client does.
func NewNATSDriver(url string, logger zerolog.Logger) (*NATSDriver, error) {
	d := &NATSDriver{logger: logger, subs: make(map[string]*nats.Subscription)}

	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ConnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats connected")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(c *nats.Conn, sub *nats.Subscription, err error) {
			logger.Warn().Err(err).Msg("nats error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	d.conn = conn
	return d, nil
}

// Publish fires message at topic. NATS pub/sub has no delivery guarantee;
// that is exactly what QoS Fast means.
func (d *NATSDriver) Publish(topic string, message []byte) error {
	return d.conn.Publish(topic, message)
}

// Subscribe installs h as the callback for topic.
func (d *NATSDriver) Subscribe(topic string, h Handler) error {
	sub, err := d.conn.Subscribe(topic, func(msg *nats.Msg) {
		h(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	d.mu.Lock()
	d.subs[topic] = sub
	d.mu.Unlock()
	return nil
}

// Healthy reports whether the underlying connection is up.
func (d *NATSDriver) Healthy() bool {
	return d.conn != nil && d.conn.IsConnected()
}

// Close unsubscribes everything and closes the connection.
func (d *NATSDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for topic, sub := range d.subs {
		if err := sub.Unsubscribe(); err != nil {
			d.logger.Warn().Err(err).Str("topic", topic).Msg("nats unsubscribe failed")
		}
	}
	d.conn.Close()
	return nil
}
