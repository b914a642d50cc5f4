package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBroker struct {
	connected    bool
	token        pahomqtt.Token
	messages     []published
	disconnected bool
}

func (b *fakeBroker) IsConnected() bool { return b.connected }

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var body []byte
	switch v := payload.(type) {
	case []byte:
		body = v
	case string:
		body = []byte(v)
	}
	b.messages = append(b.messages, published{topic: topic, qos: qos, retained: retained, payload: body})
	if b.token != nil {
		return b.token
	}
	return completedToken(nil)
}

func (b *fakeBroker) Disconnect(uint) { b.disconnected = true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord() model.TriggerRecord {
	return model.TriggerRecord{
		ID:             "rec-1",
		InstanceID:     "ctx-1",
		AutomationID:   "auto-1",
		AutomationName: "Daily Report",
		DeviceName:     "Studio Deck",
		Outcome:        model.OutcomeFailure,
		ErrorKind:      "api_error",
		TriggeredAt:    time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		DurationMS:     87,
	}
}

func TestPublishTrigger(t *testing.T) {
	broker := &fakeBroker{connected: true}
	p := newPublisher(broker, Topics{Prefix: "decks/"}, testLogger())

	if err := p.PublishTrigger(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("PublishTrigger() error: %v", err)
	}
	if len(broker.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(broker.messages))
	}
	msg := broker.messages[0]
	if msg.topic != "decks/ctx-1/trigger" {
		t.Fatalf("topic = %q", msg.topic)
	}
	if msg.qos != 1 || msg.retained {
		t.Fatalf("qos = %d retained = %v, want 1/false", msg.qos, msg.retained)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := map[string]any{
		"instanceId":     "ctx-1",
		"automationId":   "auto-1",
		"automationName": "Daily Report",
		"deviceName":     "Studio Deck",
		"outcome":        "failure",
		"errorKind":      "api_error",
		"triggeredAt":    "2026-05-01T09:30:00Z",
		"durationMs":     float64(87),
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("payload[%s] = %v, want %v", key, got[key], value)
		}
	}
}

func TestPublishTriggerErrors(t *testing.T) {
	p := newPublisher(&fakeBroker{}, Topics{}, testLogger())
	if err := p.PublishTrigger(context.Background(), sampleRecord()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishTrigger() error = %v, want ErrNotConnected", err)
	}

	broker := &fakeBroker{connected: true, token: completedToken(errors.New("not authorized"))}
	p = newPublisher(broker, Topics{}, testLogger())
	if err := p.PublishTrigger(context.Background(), sampleRecord()); !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("PublishTrigger() error = %v, want ErrPublishFailed", err)
	}

	broker = &fakeBroker{connected: true, token: &fakeToken{done: make(chan struct{})}}
	p = newPublisher(broker, Topics{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PublishTrigger(ctx, sampleRecord()); !errors.Is(err, ErrPublishTimeout) {
		t.Fatalf("PublishTrigger() error = %v, want ErrPublishTimeout", err)
	}
}

func TestCloseMarksOffline(t *testing.T) {
	broker := &fakeBroker{connected: true}
	p := newPublisher(broker, Topics{}, testLogger())

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !broker.disconnected {
		t.Fatalf("Close() did not disconnect")
	}
	if len(broker.messages) != 1 {
		t.Fatalf("expected offline status message, got %d messages", len(broker.messages))
	}
	msg := broker.messages[0]
	if msg.topic != "deck-automations/status" || string(msg.payload) != "offline" || !msg.retained {
		t.Fatalf("status message = %+v", msg)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		prefix     string
		instanceID string
		want       string
	}{
		{prefix: "", instanceID: "ctx-1", want: "deck-automations/ctx-1/trigger"},
		{prefix: " /home/deck/ ", instanceID: "ctx-1", want: "home/deck/ctx-1/trigger"},
		{prefix: "d", instanceID: "a/b+#", want: "d/a_b__/trigger"},
		{prefix: "d", instanceID: "", want: "d/unknown/trigger"},
	}
	for _, tt := range tests {
		if got := (Topics{Prefix: tt.prefix}).Trigger(tt.instanceID); got != tt.want {
			t.Fatalf("Trigger(%q) with prefix %q = %q, want %q", tt.instanceID, tt.prefix, got, tt.want)
		}
	}
}

func TestConfigEnabledAndNop(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatalf("empty config enabled")
	}
	if !(Config{Broker: "tcp://localhost:1883"}).Enabled() {
		t.Fatalf("broker config disabled")
	}
	if err := (Nop{}).PublishTrigger(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Nop.PublishTrigger() error: %v", err)
	}
}
