// Package mq implements the MessageDriver contract and MessageSystem
// facade (spec component K), grounded on original_source's IMessageDriver
// and MessageSystem: a QoS tag (Fast/Reliable) selects which driver
// handles a given Publish/Subscribe call, exactly as MessageSystem's
// m_drivers map does.
package mq

import "github.com/rs/zerolog"

// Handler receives a message delivered on topic.
type Handler func(topic string, message []byte)

// QoS selects which backend carries a message.
type QoS int

const (
	Fast QoS = iota
	Reliable
)

func (q QoS) String() string {
	if q == Reliable {
		return "reliable"
	}
	return "fast"
}

// Driver is the contract every MQ backend implements, mirroring
// IMessageDriver's Connect/Publish/Subscribe/Disconnect shape (Connect is
// folded into each driver's constructor, which is more idiomatic Go than a
// separate two-phase Connect call).
type Driver interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, h Handler) error
	Healthy() bool
	Close() error
}

// System is the QoS-keyed facade over the registered drivers, mirroring
// MessageSystem::Publish/Subscribe's driver lookup by QoS.
type System struct {
	drivers map[QoS]Driver
	logger  zerolog.Logger
}

// NewSystem creates an empty facade; drivers are wired in with Register.
func NewSystem(logger zerolog.Logger) *System {
	return &System{drivers: make(map[QoS]Driver), logger: logger}
}

// Register installs a driver for qos, replacing any previous one.
func (s *System) Register(qos QoS, d Driver) {
	s.drivers[qos] = d
}

// Publish routes message to the driver registered for qos. Returns false
// if no driver is registered for that QoS, matching MessageSystem::Publish
// returning false on an unknown channel rather than panicking.
func (s *System) Publish(topic string, message []byte, qos QoS) bool {
	d, ok := s.drivers[qos]
	if !ok {
		s.logger.Warn().Str("qos", qos.String()).Str("topic", topic).Msg("no driver registered for QoS, dropping publish")
		return false
	}
	if err := d.Publish(topic, message); err != nil {
		s.logger.Warn().Err(err).Str("qos", qos.String()).Str("topic", topic).Msg("publish failed")
		return false
	}
	return true
}

// Subscribe routes the subscription to the driver registered for qos.
func (s *System) Subscribe(topic string, h Handler, qos QoS) bool {
	d, ok := s.drivers[qos]
	if !ok {
		s.logger.Warn().Str("qos", qos.String()).Str("topic", topic).Msg("no driver registered for QoS, cannot subscribe")
		return false
	}
	if err := d.Subscribe(topic, h); err != nil {
		s.logger.Warn().Err(err).Str("qos", qos.String()).Str("topic", topic).Msg("subscribe failed")
		return false
	}
	return true
}

// DriverHealthy reports whether the driver for qos is currently connected,
// false if none is registered.
func (s *System) DriverHealthy(qos QoS) bool {
	d, ok := s.drivers[qos]
	return ok && d.Healthy()
}

// Close shuts down every registered driver.
func (s *System) Close() {
	for qos, d := range s.drivers {
		if err := d.Close(); err != nil {
			s.logger.Warn().Err(err).Str("qos", qos.String()).Msg("driver close failed")
		}
	}
}
