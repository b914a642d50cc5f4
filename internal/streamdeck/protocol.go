package streamdeck

import (
	"encoding/json"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// Inbound event names.
const (
	EventWillAppear               = "willAppear"
	EventWillDisappear            = "willDisappear"
	EventKeyDown                  = "keyDown"
	EventKeyUp                    = "keyUp"
	EventDidReceiveSettings       = "didReceiveSettings"
	EventSendToPlugin             = "sendToPlugin"
	EventDidReceiveGlobalSettings = "didReceiveGlobalSettings"
	EventDeviceDidConnect         = "deviceDidConnect"
	EventDeviceDidDisconnect      = "deviceDidDisconnect"
)

// Outbound command names.
const (
	commandSetTitle                = "setTitle"
	commandSetImage                = "setImage"
	commandShowAlert               = "showAlert"
	commandSendToPropertyInspector = "sendToPropertyInspector"
	commandGetGlobalSettings       = "getGlobalSettings"
	commandSetGlobalSettings       = "setGlobalSettings"
)

// targetBoth addresses both the hardware key and the software display.
const targetBoth = 0

// Inbound is one message received from the host.
type Inbound struct {
	Event      string          `json:"event"`
	Action     string          `json:"action,omitempty"`
	Context    string          `json:"context,omitempty"`
	Device     string          `json:"device,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DeviceInfo *deviceInfo     `json:"deviceInfo,omitempty"`
}

type deviceInfo struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

type actionPayload struct {
	Settings model.InstanceSettings `json:"settings"`
}

type globalSettingsPayload struct {
	Settings model.GlobalSettings `json:"settings"`
}

type registration struct {
	Event string `json:"event"`
	UUID  string `json:"uuid"`
}

type command struct {
	Event   string `json:"event"`
	Context string `json:"context"`
	Action  string `json:"action,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type titlePayload struct {
	Title  string `json:"title"`
	Target int    `json:"target"`
}

type imagePayload struct {
	Image  string `json:"image,omitempty"`
	Target int    `json:"target"`
}

// settings decodes the instance settings carried by action events. A missing
// or malformed payload yields empty settings.
func (in Inbound) settings() model.InstanceSettings {
	if len(in.Payload) == 0 {
		return model.InstanceSettings{}
	}
	var payload actionPayload
	if err := json.Unmarshal(in.Payload, &payload); err != nil {
		return model.InstanceSettings{}
	}
	return payload.Settings
}
