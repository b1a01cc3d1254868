package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSource subscribes to the telemetry topic and forwards messages as
// events. The subscription is renewed on every (re)connect.
type MQTTSource struct {
	cfg     config.TelemetryConfig
	client  mqtt.Client
	events  chan Event
	logger  *zap.Logger
	dropped atomic.Uint64

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewMQTTSource(cfg config.TelemetryConfig, logger *zap.Logger) *MQTTSource {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}

	s := &MQTTSource{
		cfg:    cfg,
		events: make(chan Event, buffer),
		logger: logger,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", zap.Error(err))
		})

	s.client = mqtt.NewClient(opts)
	return s
}

// Events returns the channel the ingester drains. It is closed by Close.
func (s *MQTTSource) Events() <-chan Event {
	return s.events
}

// Connect connects to the broker and waits at most the configured timeout.
func (s *MQTTSource) Connect(ctx context.Context) error {
	token := s.client.Connect()

	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case <-token.Done():
	case <-time.After(timeout):
		return fmt.Errorf("mqtt connect to %s timed out after %s", s.cfg.BrokerURL, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}

	s.logger.Info("MQTT client connected",
		zap.String("url", s.cfg.BrokerURL),
		zap.String("client_id", s.cfg.ClientID))

	return nil
}

func (s *MQTTSource) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.cfg.Topic, byte(s.cfg.QoS), s.onMessage)
	if !token.WaitTimeout(10 * time.Second) {
		s.logger.Error("MQTT subscribe timed out", zap.String("topic", s.cfg.Topic))
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("MQTT subscribe failed",
			zap.String("topic", s.cfg.Topic),
			zap.Error(err))
		return
	}
	s.logger.Info("MQTT subscribed", zap.String("topic", s.cfg.Topic))
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ev := Event{
		Topic:    msg.Topic(),
		Payload:  string(msg.Payload()),
		Received: time.Now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- ev:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn("Telemetry buffer full, message dropped",
			zap.String("topic", ev.Topic),
			zap.Uint64("dropped_total", n))
	}
}

// Dropped returns the number of messages lost to a full buffer
func (s *MQTTSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Close disconnects from the broker and closes the event channel.
func (s *MQTTSource) Close() {
	s.closeOnce.Do(func() {
		if s.client.IsConnected() {
			s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
		}
		s.client.Disconnect(250)

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()

		s.logger.Info("MQTT client disconnected")
	})
}
