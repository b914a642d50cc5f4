package automations

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/micro-ha/deck-automations/plugin/internal/credential"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

const (
	listPath    = "/api/triggers/automations"
	triggerPath = "/api/triggers/streamdeck"

	maxResponseBytes = 1 << 20
	isoMillis        = "2006-01-02T15:04:05.000Z07:00"
)

// Client calls the remote automation service. It never retries: every method
// reports the outcome of a single attempt.
type Client struct {
	baseURL string
	header  string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(endpoint model.ServiceEndpoint) *Client {
	return &Client{
		baseURL: endpoint.BaseURL(),
		header:  endpoint.Header(),
		http:    &http.Client{Timeout: endpoint.RequestTimeout()},
		logger:  slog.Default(),
	}
}

// WithLogger returns the client with logger attached.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if httpClient != nil {
		c.http = httpClient
	}
	return c
}

type listEnvelope struct {
	Automations []model.Automation `json:"automations"`
}

type triggerRequest struct {
	Context triggerContext `json:"context"`
	Payload triggerPayload `json:"payload"`
}

type triggerContext struct {
	DeviceName  string `json:"deviceName"`
	TriggeredAt string `json:"triggeredAt"`
}

type triggerPayload struct {
	Action       string `json:"action"`
	AutomationID string `json:"automationId"`
}

// ListAutomations fetches the automation catalog visible to apiKey.
func (c *Client) ListAutomations(ctx context.Context, apiKey string) ([]model.Automation, error) {
	if err := credential.Validate(apiKey); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodGet, listPath, apiKey, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeCatalog(body)
	if err != nil {
		return nil, &ServiceError{Kind: KindOther, Err: err}
	}
	return items, nil
}

// TriggerAutomation runs ref on behalf of the button instance instanceID.
func (c *Client) TriggerAutomation(
	ctx context.Context,
	apiKey string,
	ref model.AutomationRef,
	instanceID string,
	tc model.TriggerContext,
) error {
	if err := credential.Validate(apiKey); err != nil {
		return err
	}
	payload, err := json.Marshal(triggerRequest{
		Context: triggerContext{
			DeviceName:  tc.DeviceName,
			TriggeredAt: tc.TriggeredAt.UTC().Format(isoMillis),
		},
		Payload: triggerPayload{
			Action:       instanceID,
			AutomationID: ref.ID,
		},
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, triggerPath, apiKey, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set(c.header, apiKey)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	startedAt := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("automation request failed", "method", method, "path", path, "request_id", requestID, "err", err)
		return nil, &ServiceError{Kind: KindConnection, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug(
		"automation request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ServiceError{Kind: KindConnection, Err: err}
	}
	return body, nil
}

func decodeCatalog(body []byte) ([]model.Automation, error) {
	trimmed := bytes.TrimSpace(body)
	var raw []model.Automation
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
	} else {
		var envelope listEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		raw = envelope.Automations
	}

	items := make([]model.Automation, 0, len(raw))
	for _, item := range raw {
		if item.ID == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
