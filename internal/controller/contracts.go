package controller

import (
	"context"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// CredentialStore holds the API key shared by every key.
type CredentialStore interface {
	// Get fails soft: any read problem is reported as absent.
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, key string) error
}

// AutomationService is the remote automation API.
type AutomationService interface {
	ListAutomations(ctx context.Context, apiKey string) ([]model.Automation, error)
	TriggerAutomation(
		ctx context.Context,
		apiKey string,
		ref model.AutomationRef,
		instanceID string,
		tc model.TriggerContext,
	) error
}

// Surface is what the controller can change on the host: key visuals and
// messages to the configuration surface.
type Surface interface {
	SetTitle(ctx context.Context, instanceID, title string) error
	SetImage(ctx context.Context, instanceID, image string) error
	ShowAlert(ctx context.Context, instanceID string) error
	SendToPropertyInspector(ctx context.Context, instanceID string, payload any) error
}

// HistoryRecorder stores trigger attempts.
type HistoryRecorder interface {
	RecordTrigger(ctx context.Context, record model.TriggerRecord) error
}

// EventPublisher announces trigger attempts to other systems.
type EventPublisher interface {
	PublishTrigger(ctx context.Context, record model.TriggerRecord) error
}

// Event is one instance-scoped host event.
type Event struct {
	InstanceID string
	Action     string
	Device     string
	Settings   model.InstanceSettings
}
