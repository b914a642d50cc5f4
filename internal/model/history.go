package model

import "time"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// TriggerRecord describes one trigger attempt made from a key.
type TriggerRecord struct {
	ID             string    `json:"id"`
	InstanceID     string    `json:"instance_id"`
	AutomationID   string    `json:"automation_id"`
	AutomationName string    `json:"automation_name"`
	DeviceName     string    `json:"device_name"`
	Outcome        string    `json:"outcome"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	TriggeredAt    time.Time `json:"triggered_at"`
	DurationMS     int64     `json:"duration_ms"`
}
