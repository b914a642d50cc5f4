package controller

import (
	"context"
	"encoding/json"

	"github.com/micro-ha/deck-automations/plugin/internal/automations"
	"github.com/micro-ha/deck-automations/plugin/internal/credential"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// Inbound configuration-surface actions.
const (
	ActionSaveAPIKey       = "saveApiKey"
	ActionTestAPIKey       = "testApiKey"
	ActionFetchAutomations = "fetchAutomations"
	ActionGetAPIKey        = "getApiKey"
)

// Relay events sent back to the configuration surface.
const (
	EventAPIKeyLoaded      = "apiKeyLoaded"
	EventAPIKeySaved       = "apiKeySaved"
	EventAPIKeyTested      = "apiKeyTested"
	EventAPIKeyError       = "apiKeyError"
	EventAutomationsLoaded = "automationsLoaded"
	EventAutomationsError  = "automationsError"
)

const (
	msgInvalidFormat = "Invalid API key format"
	msgSaveFailed    = "Failed to save API key"
	msgNotConfigured = "API key not configured"
)

// Message is the configuration-surface envelope.
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type apiKeyData struct {
	APIKey string `json:"apiKey"`
}

// HandleMessage dispatches one raw configuration-surface message.
func (c *Controller) HandleMessage(ctx context.Context, instanceID string, raw json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("malformed configuration message", "instance", instanceID, "err", err)
		return
	}

	var data apiKeyData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.logger.Warn("malformed configuration message data", "instance", instanceID, "action", msg.Action, "err", err)
			return
		}
	}

	switch msg.Action {
	case ActionSaveAPIKey:
		c.SaveCredential(ctx, instanceID, data.APIKey)
	case ActionTestAPIKey:
		c.TestCredential(ctx, instanceID, data.APIKey)
	case ActionFetchAutomations:
		c.FetchCatalog(ctx, instanceID, data.APIKey)
	case ActionGetAPIKey:
		c.GetCredential(ctx, instanceID)
	default:
		c.logger.Debug("unknown configuration action", "instance", instanceID, "action", msg.Action)
	}
}

// SaveCredential validates and persists apiKey, then tests it. The key is
// checked exactly as received.
func (c *Controller) SaveCredential(ctx context.Context, instanceID, apiKey string) {
	if !credential.IsValid(apiKey) {
		c.relay(ctx, instanceID, EventAPIKeyError, map[string]any{"error": msgInvalidFormat})
		return
	}
	if err := c.credentials.Set(ctx, apiKey); err != nil {
		c.logger.Error("persist api key failed", "instance", instanceID, "err", err)
		c.relay(ctx, instanceID, EventAPIKeyError, map[string]any{"error": msgSaveFailed})
		return
	}
	c.logger.Info("api key saved", "instance", instanceID)
	c.relay(ctx, instanceID, EventAPIKeySaved, nil)
	c.TestCredential(ctx, instanceID, apiKey)
}

// TestCredential checks that apiKey is authorized and, when it is, loads the catalog.
func (c *Controller) TestCredential(ctx context.Context, instanceID, apiKey string) {
	if !credential.IsValid(apiKey) {
		c.relay(ctx, instanceID, EventAPIKeyTested, map[string]any{"valid": false, "error": msgInvalidFormat})
		return
	}
	if _, err := c.service.ListAutomations(ctx, apiKey); err != nil {
		c.logger.Warn("api key test failed", "instance", instanceID, "err", err)
		c.relay(ctx, instanceID, EventAPIKeyTested, map[string]any{"valid": false, "error": automations.Message(err)})
		return
	}
	c.relay(ctx, instanceID, EventAPIKeyTested, map[string]any{"valid": true})
	c.FetchCatalog(ctx, instanceID, apiKey)
}

// FetchCatalog relays the automation catalog. An empty apiKey falls back to
// the stored one.
func (c *Controller) FetchCatalog(ctx context.Context, instanceID, apiKey string) {
	if apiKey == "" {
		stored, ok := c.credentials.Get(ctx)
		if !ok {
			c.relay(ctx, instanceID, EventAutomationsError, map[string]any{"error": msgNotConfigured})
			return
		}
		apiKey = stored
	}
	if !credential.IsValid(apiKey) {
		c.relay(ctx, instanceID, EventAutomationsError, map[string]any{"error": msgInvalidFormat})
		return
	}

	items, err := c.service.ListAutomations(ctx, apiKey)
	if err != nil {
		c.logger.Warn("fetch automations failed", "instance", instanceID, "err", err)
		c.relay(ctx, instanceID, EventAutomationsError, map[string]any{"error": automations.Message(err)})
		return
	}
	if items == nil {
		items = []model.Automation{}
	}
	c.relay(ctx, instanceID, EventAutomationsLoaded, map[string]any{"automations": items})
}

// GetCredential relays the stored API key, or an empty string.
func (c *Controller) GetCredential(ctx context.Context, instanceID string) {
	apiKey, _ := c.credentials.Get(ctx)
	c.relay(ctx, instanceID, EventAPIKeyLoaded, map[string]any{"apiKey": apiKey})
}

func (c *Controller) relay(ctx context.Context, instanceID, event string, fields map[string]any) {
	payload := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		payload[key] = value
	}
	payload["event"] = event
	if err := c.surface.SendToPropertyInspector(ctx, instanceID, payload); err != nil {
		c.logger.Warn("relay to configuration surface failed", "instance", instanceID, "event", event, "err", err)
	}
}
