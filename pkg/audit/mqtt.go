package audit

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqttclient "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT mirror.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string

	// Topic is the prefix lines are published under. Each line goes to
	// <Topic>/<source>/<stream>.
	Topic string

	ClientID string
	QoS      byte

	// Timeout bounds connect and publish acknowledgement. Defaults to 5s.
	Timeout time.Duration
}

// MQTTMirror publishes trail lines to an MQTT broker so that they can be
// watched live. The mirror is best effort: the file trail remains the
// record used for recovery.
type MQTTMirror struct {
	client  mqttclient.Client
	topic   string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// NewMQTTMirror connects to the broker described by cfg.
func NewMQTTMirror(cfg MQTTConfig, logger *slog.Logger) (*MQTTMirror, error) {
	if cfg.Broker == "" {
		return nil, errors.New("audit: mqtt broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "dserver/audit"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "dserver"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := mqttclient.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqttclient.Client, err error) {
		logger.Warn("audit mirror connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqttclient.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("audit: timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("audit: failed to connect to %s: %w", cfg.Broker, err)
	}

	return &MQTTMirror{
		client:  client,
		topic:   strings.TrimSuffix(cfg.Topic, "/"),
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "audit-mirror"),
	}, nil
}

// Topic returns the topic a source's stream is published to.
func (m *MQTTMirror) Topic(source string, stream Stream) string {
	return m.topic + "/" + source + "/" + string(stream)
}

// Publish sends one line and waits for the broker acknowledgement.
func (m *MQTTMirror) Publish(source string, stream Stream, entry Entry) error {
	token := m.client.Publish(m.Topic(source, stream), m.qos, false, entry.Line())
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("audit: publish to %s timed out", m.Topic(source, stream))
	}
	return token.Error()
}

// Factory returns a Factory whose loggers publish through the mirror.
// Publish failures are logged and never reported to the caller.
func (m *MQTTMirror) Factory() Factory {
	return func(source string, stream Stream) (Logger, error) {
		return &mirrorLogger{mirror: m, source: source, stream: stream}, nil
	}
}

// Close disconnects from the broker.
func (m *MQTTMirror) Close() error {
	m.client.Disconnect(250)
	return nil
}

type mirrorLogger struct {
	mirror *MQTTMirror
	source string
	stream Stream
}

func (l *mirrorLogger) Log(entry Entry) error {
	if err := l.mirror.Publish(l.source, l.stream, entry); err != nil {
		l.mirror.logger.Warn("audit mirror publish failed",
			"source", l.source, "stream", l.stream, "error", err)
	}
	return nil
}

// Close is a no-op; the mirror owns the connection.
func (l *mirrorLogger) Close() error {
	return nil
}
