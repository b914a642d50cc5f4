package streamdeck

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/micro-ha/deck-automations/plugin/internal/controller"
	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

// Actions is the controller surface the router drives.
type Actions interface {
	OnAppear(ctx context.Context, ev controller.Event)
	OnDisappear(ctx context.Context, ev controller.Event)
	OnKeyDown(ctx context.Context, ev controller.Event)
	OnKeyUp(ctx context.Context, ev controller.Event)
	OnSettingsChanged(ctx context.Context, ev controller.Event)
	HandleMessage(ctx context.Context, instanceID string, raw json.RawMessage)
	DeviceConnected(deviceID, name string)
}

// GlobalSettingsSink receives plugin-wide settings pushed by the host.
type GlobalSettingsSink interface {
	Update(settings model.GlobalSettings)
}

// Router maps host messages onto controller calls. Instance events are queued
// per instance so one slow trigger never stalls other keys or the read loop.
type Router struct {
	actions    Actions
	globals    GlobalSettingsSink
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewRouter(actions Actions, globals GlobalSettingsSink, dispatcher *Dispatcher, logger *slog.Logger) *Router {
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{actions: actions, globals: globals, dispatcher: dispatcher, logger: logger}
}

// Handle routes one inbound message. It never blocks on controller work.
func (r *Router) Handle(ctx context.Context, in Inbound) {
	switch in.Event {
	case EventWillAppear:
		ev := toEvent(in)
		r.submit(in, func() { r.actions.OnAppear(ctx, ev) })
	case EventWillDisappear:
		ev := toEvent(in)
		if in.Context == "" {
			return
		}
		r.dispatcher.Finish(in.Context, func() { r.actions.OnDisappear(ctx, ev) })
	case EventKeyDown:
		ev := toEvent(in)
		r.submit(in, func() { r.actions.OnKeyDown(ctx, ev) })
	case EventKeyUp:
		ev := toEvent(in)
		r.submit(in, func() { r.actions.OnKeyUp(ctx, ev) })
	case EventDidReceiveSettings:
		ev := toEvent(in)
		r.submit(in, func() { r.actions.OnSettingsChanged(ctx, ev) })
	case EventSendToPlugin:
		raw := in.Payload
		instanceID := in.Context
		r.submit(in, func() { r.actions.HandleMessage(ctx, instanceID, raw) })
	case EventDidReceiveGlobalSettings:
		var payload globalSettingsPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				r.logger.Warn("malformed global settings", "err", err)
			}
		}
		if r.globals != nil {
			r.globals.Update(payload.Settings)
		}
	case EventDeviceDidConnect:
		name := ""
		if in.DeviceInfo != nil {
			name = in.DeviceInfo.Name
		}
		r.actions.DeviceConnected(in.Device, name)
		r.logger.Info("device connected", "device", in.Device, "name", name)
	case EventDeviceDidDisconnect:
		r.logger.Info("device disconnected", "device", in.Device)
	default:
		r.logger.Debug("ignored host event", "event", in.Event, "context", in.Context)
	}
}

// Close drains queued instance work.
func (r *Router) Close() {
	r.dispatcher.Close()
}

func (r *Router) submit(in Inbound, fn func()) {
	if in.Context == "" {
		r.logger.Debug("host event without context", "event", in.Event)
		return
	}
	if !r.dispatcher.Submit(in.Context, fn) {
		r.logger.Debug("dropped host event after shutdown", "event", in.Event, "context", in.Context)
	}
}

func toEvent(in Inbound) controller.Event {
	return controller.Event{
		InstanceID: in.Context,
		Action:     in.Action,
		Device:     in.Device,
		Settings:   in.settings(),
	}
}
