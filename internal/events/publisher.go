package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultTopicPrefix       = "deck-automations"

	triggerQoS = 1
	statusQoS  = 1

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt not connected")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrPublishTimeout   = errors.New("mqtt publish timeout")
)

// Config selects the broker trigger events are published to.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Broker) != ""
}

// TriggerEvent is the published form of a trigger attempt.
type TriggerEvent struct {
	InstanceID     string `json:"instanceId"`
	AutomationID   string `json:"automationId"`
	AutomationName string `json:"automationName"`
	DeviceName     string `json:"deviceName,omitempty"`
	Outcome        string `json:"outcome"`
	ErrorKind      string `json:"errorKind,omitempty"`
	TriggeredAt    string `json:"triggeredAt"`
	DurationMS     int64  `json:"durationMs"`
}

func NewTriggerEvent(record model.TriggerRecord) TriggerEvent {
	return TriggerEvent{
		InstanceID:     record.InstanceID,
		AutomationID:   record.AutomationID,
		AutomationName: record.AutomationName,
		DeviceName:     record.DeviceName,
		Outcome:        record.Outcome,
		ErrorKind:      record.ErrorKind,
		TriggeredAt:    record.TriggeredAt.UTC().Format(time.RFC3339Nano),
		DurationMS:     record.DurationMS,
	}
}

// Topics builds topic names under one prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(strings.TrimSpace(t.Prefix), "/")
	if p == "" {
		return defaultTopicPrefix
	}
	return p
}

// Trigger is where attempts made from instanceID are published.
func (t Topics) Trigger(instanceID string) string {
	return t.prefix() + "/" + sanitizeSegment(instanceID) + "/trigger"
}

// Status carries the retained online/offline marker.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// sanitizeSegment keeps MQTT wildcards and separators out of a topic level.
func sanitizeSegment(v string) string {
	v = strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

// brokerClient is the subset of the paho client the publisher uses.
type brokerClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends trigger events to an MQTT broker.
type Publisher struct {
	client brokerClient
	topics Topics
	logger *slog.Logger
}

// Connect dials the broker. The retained status topic reports "online" while
// connected and "offline" after Close or an unexpected drop.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	topics := Topics{Prefix: cfg.TopicPrefix}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(topics.Status(), statusOffline, statusQoS, true)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
		c.Publish(topics.Status(), statusQoS, true, statusOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return newPublisher(client, topics, logger), nil
}

func newPublisher(client brokerClient, topics Topics, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, topics: topics, logger: logger}
}

// PublishTrigger publishes record at QoS 1, not retained.
func (p *Publisher) PublishTrigger(ctx context.Context, record model.TriggerRecord) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(NewTriggerEvent(record))
	if err != nil {
		return fmt.Errorf("encode trigger event: %w", err)
	}

	topic := p.topics.Trigger(record.InstanceID)
	token := p.client.Publish(topic, triggerQoS, false, payload)
	return waitToken(ctx, token, topic)
}

// Close publishes the offline marker and disconnects.
func (p *Publisher) Close() error {
	if p.client.IsConnected() {
		token := p.client.Publish(p.topics.Status(), statusQoS, true, statusOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	p.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

func waitToken(ctx context.Context, token pahomqtt.Token, topic string) error {
	timer := time.NewTimer(defaultPublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrPublishTimeout, topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Nop discards trigger events. It stands in when no broker is configured.
type Nop struct{}

func (Nop) PublishTrigger(context.Context, model.TriggerRecord) error { return nil }

func (Nop) Close() error { return nil }
