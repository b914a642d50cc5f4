package controller

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/micro-ha/deck-automations/plugin/internal/button"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
	"github.com/micro-ha/deck-automations/plugin/internal/timeouts"
)

const defaultDeviceName = "Stream Deck"

// Dependencies groups the controller collaborators. Only Credentials, Service
// and Surface are required. Async runs fire-and-forget work and defaults to a
// new goroutine.
type Dependencies struct {
	Credentials       CredentialStore
	Service           AutomationService
	Surface           Surface
	Resets            *timeouts.Registry
	History           HistoryRecorder
	Events            EventPublisher
	Clock             timeouts.Clock
	Logger            *slog.Logger
	Async             func(func())
	DefaultDeviceName string
}

// Controller turns host events into key visuals and configuration-surface relays.
type Controller struct {
	credentials CredentialStore
	service     AutomationService
	surface     Surface
	resets      *timeouts.Registry
	history     HistoryRecorder
	events      EventPublisher
	clock       timeouts.Clock
	logger      *slog.Logger
	async       func(func())
	deviceName  string
	pending     sync.WaitGroup

	mu        sync.Mutex
	instances map[string]*instance
	devices   map[string]string
}

type instance struct {
	id     string
	action string

	// handling serializes event processing for this key, including the
	// network call of a trigger.
	handling sync.Mutex

	mu       sync.RWMutex
	device   string
	settings model.InstanceSettings
	view     button.View
	gone     bool
}

// InstanceView is a diagnostics snapshot of one key.
type InstanceView struct {
	InstanceID    string                 `json:"instance_id"`
	Action        string                 `json:"action"`
	Device        string                 `json:"device"`
	Settings      model.InstanceSettings `json:"settings"`
	View          button.View            `json:"view"`
	PendingResets int                    `json:"pending_resets"`
}

func New(deps Dependencies) *Controller {
	c := &Controller{
		credentials: deps.Credentials,
		service:     deps.Service,
		surface:     deps.Surface,
		resets:      deps.Resets,
		history:     deps.History,
		events:      deps.Events,
		clock:       deps.Clock,
		logger:      deps.Logger,
		async:       deps.Async,
		deviceName:  deps.DefaultDeviceName,
		instances:   map[string]*instance{},
		devices:     map[string]string{},
	}
	if c.clock == nil {
		c.clock = timeouts.SystemClock{}
	}
	if c.resets == nil {
		c.resets = timeouts.NewRegistry(c.clock)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.async == nil {
		c.async = func(fn func()) { go fn() }
	}
	if c.deviceName == "" {
		c.deviceName = defaultDeviceName
	}
	return c
}

// OnAppear renders the baseline view of a key that became visible.
func (c *Controller) OnAppear(ctx context.Context, ev Event) {
	c.refresh(ctx, ev, "appear")
}

// OnSettingsChanged re-renders a key after its settings changed.
func (c *Controller) OnSettingsChanged(ctx context.Context, ev Event) {
	c.refresh(ctx, ev, "settings_changed")
}

// OnKeyDown never changes visuals; only the release acts.
func (c *Controller) OnKeyDown(ctx context.Context, ev Event) {
	inst := c.track(ev)
	inst.handling.Lock()
	defer inst.handling.Unlock()
	c.logger.Debug("key down", "instance", ev.InstanceID)
}

// OnKeyUp runs the press cycle: configuration errors show a self-resetting
// alert, otherwise the automation is triggered and the outcome displayed.
func (c *Controller) OnKeyUp(ctx context.Context, ev Event) {
	inst := c.track(ev)
	inst.handling.Lock()
	defer inst.handling.Unlock()

	settings := inst.updateSettings(ev.Settings)
	apiKey, hasKey := c.credentials.Get(ctx)

	decision := button.KeyUp(settings, hasKey)
	c.apply(ctx, inst, decision.View)
	if decision.Reset != nil {
		c.schedule(inst, *decision.Reset)
	}
	if !decision.Trigger {
		c.logger.Info("key press rejected", "instance", inst.id, "state", decision.View.State.String())
		return
	}

	startedAt := c.clock.Now()
	deviceName := c.deviceNameFor(inst.currentDevice())
	err := c.service.TriggerAutomation(ctx, apiKey, decision.Automation, inst.id, model.TriggerContext{
		DeviceName:  deviceName,
		TriggeredAt: startedAt,
	})
	elapsed := c.clock.Now().Sub(startedAt)

	view, reset := button.TriggerOutcome(decision.Automation, err)
	c.apply(ctx, inst, view)
	c.schedule(inst, reset)

	record := model.TriggerRecord{
		ID:             uuid.NewString(),
		InstanceID:     inst.id,
		AutomationID:   decision.Automation.ID,
		AutomationName: decision.Automation.Name,
		DeviceName:     deviceName,
		Outcome:        model.OutcomeSuccess,
		TriggeredAt:    startedAt.UTC(),
		DurationMS:     elapsed.Milliseconds(),
	}
	if err != nil {
		record.Outcome = model.OutcomeFailure
		record.ErrorKind = string(view.ErrorKind)
		c.logger.Warn("automation trigger failed",
			"instance", inst.id,
			"automation_id", decision.Automation.ID,
			"error_kind", record.ErrorKind,
			"err", err,
		)
	} else {
		c.logger.Info("automation triggered",
			"instance", inst.id,
			"automation_id", decision.Automation.ID,
			"duration_ms", record.DurationMS,
		)
	}
	c.report(ctx, record)
}

// OnDisappear tears a key down and cancels every reset it still owns.
func (c *Controller) OnDisappear(ctx context.Context, ev Event) {
	c.mu.Lock()
	inst, ok := c.instances[ev.InstanceID]
	delete(c.instances, ev.InstanceID)
	c.mu.Unlock()

	if !ok {
		c.resets.CancelAll(ev.InstanceID)
		return
	}

	inst.handling.Lock()
	defer inst.handling.Unlock()
	inst.mu.Lock()
	inst.gone = true
	inst.mu.Unlock()

	cancelled := c.resets.CancelAll(inst.id)
	c.logger.Debug("instance disappeared", "instance", inst.id, "cancelled_resets", cancelled)
}

// DeviceConnected records the display name used in trigger payloads.
func (c *Controller) DeviceConnected(deviceID, name string) {
	if deviceID == "" || name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[deviceID] = name
}

// Snapshot lists every tracked key ordered by instance id.
func (c *Controller) Snapshot() []InstanceView {
	c.mu.Lock()
	items := make([]*instance, 0, len(c.instances))
	for _, inst := range c.instances {
		items = append(items, inst)
	}
	c.mu.Unlock()

	out := make([]InstanceView, 0, len(items))
	for _, inst := range items {
		inst.mu.RLock()
		out = append(out, InstanceView{
			InstanceID:    inst.id,
			Action:        inst.action,
			Device:        inst.device,
			Settings:      inst.settings,
			View:          inst.view,
			PendingResets: c.resets.Pending(inst.id),
		})
		inst.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out
}

// Close cancels every pending reset of every key and waits for background
// work started by earlier events.
func (c *Controller) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.instances))
	for id, inst := range c.instances {
		ids = append(ids, id)
		inst.mu.Lock()
		inst.gone = true
		inst.mu.Unlock()
	}
	c.instances = map[string]*instance{}
	c.mu.Unlock()

	for _, id := range ids {
		c.resets.CancelAll(id)
	}
	c.pending.Wait()
}

// goAsync runs fn through the async hook and tracks it for Close.
func (c *Controller) goAsync(fn func()) {
	c.pending.Add(1)
	c.async(func() {
		defer c.pending.Done()
		fn()
	})
}

func (c *Controller) refresh(ctx context.Context, ev Event, reason string) {
	inst := c.track(ev)
	inst.handling.Lock()
	defer inst.handling.Unlock()

	settings := inst.updateSettings(ev.Settings)
	apiKey, hasKey := c.credentials.Get(ctx)
	c.apply(ctx, inst, button.Baseline(settings, hasKey))
	c.logger.Debug("instance refreshed", "instance", inst.id, "reason", reason, "has_api_key", hasKey)

	if button.NeedsCatalog(settings, hasKey) {
		instanceID := inst.id
		c.goAsync(func() { c.TestCredential(ctx, instanceID, apiKey) })
	}
}

func (c *Controller) track(ev Event) *instance {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[ev.InstanceID]
	if !ok {
		inst = &instance{id: ev.InstanceID, action: ev.Action}
		c.instances[ev.InstanceID] = inst
	}
	if ev.Device != "" {
		inst.mu.Lock()
		inst.device = ev.Device
		inst.mu.Unlock()
	}
	return inst
}

func (c *Controller) schedule(inst *instance, reset button.Reset) {
	c.resets.Schedule(inst.id, reset.After, func() {
		inst.handling.Lock()
		defer inst.handling.Unlock()
		if inst.isGone() {
			return
		}
		c.apply(context.Background(), inst, reset.To)
	})
}

// apply pushes view to the host. The image is only sent when it changes.
func (c *Controller) apply(ctx context.Context, inst *instance, view button.View) {
	inst.mu.Lock()
	previous := inst.view
	inst.view = view
	inst.mu.Unlock()

	if err := c.surface.SetTitle(ctx, inst.id, view.Title); err != nil {
		c.logger.Warn("set title failed", "instance", inst.id, "err", err)
	}
	if view.Image != previous.Image {
		if err := c.surface.SetImage(ctx, inst.id, string(view.Image)); err != nil {
			c.logger.Warn("set image failed", "instance", inst.id, "err", err)
		}
	}
	if view.Alert {
		if err := c.surface.ShowAlert(ctx, inst.id); err != nil {
			c.logger.Warn("show alert failed", "instance", inst.id, "err", err)
		}
	}
}

// report stores and publishes record in the background, detached from the
// event's cancellation.
func (c *Controller) report(ctx context.Context, record model.TriggerRecord) {
	if c.history == nil && c.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	c.goAsync(func() {
		if c.history != nil {
			if err := c.history.RecordTrigger(ctx, record); err != nil {
				c.logger.Warn("record trigger failed", "instance", record.InstanceID, "err", err)
			}
		}
		if c.events != nil {
			if err := c.events.PublishTrigger(ctx, record); err != nil {
				c.logger.Warn("publish trigger failed", "instance", record.InstanceID, "err", err)
			}
		}
	})
}

func (c *Controller) deviceNameFor(deviceID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.devices[deviceID]; ok {
		return name
	}
	return c.deviceName
}

func (i *instance) updateSettings(settings model.InstanceSettings) model.InstanceSettings {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.settings = settings
	return settings
}

func (i *instance) currentDevice() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.device
}

func (i *instance) isGone() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.gone
}
