package model

import (
	"strings"
	"time"
)

// AutomationRef identifies the remote automation a button invokes.
type AutomationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InstanceSettings is the persisted per-button configuration.
type InstanceSettings struct {
	AutomationID   string `json:"automationId,omitempty"`
	AutomationName string `json:"automationName,omitempty"`
}

// Automation returns the configured reference. Id and name travel together:
// either one missing means the button is not configured.
func (s InstanceSettings) Automation() (AutomationRef, bool) {
	if s.AutomationID == "" || strings.TrimSpace(s.AutomationName) == "" {
		return AutomationRef{}, false
	}
	return AutomationRef{ID: s.AutomationID, Name: s.AutomationName}, true
}

// GlobalSettings is the persisted plugin-wide configuration.
type GlobalSettings struct {
	APIKey string `json:"apiKey,omitempty"`
}

// Automation is one entry of the remote automation catalog.
type Automation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TriggerContext is the descriptive payload sent with every trigger.
type TriggerContext struct {
	DeviceName  string
	TriggeredAt time.Time
}

// Device describes one hardware unit known to the host.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type,omitempty"`
}
