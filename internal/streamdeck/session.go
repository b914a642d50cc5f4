package streamdeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/micro-ha/deck-automations/plugin/internal/model"
)

const writeTimeout = 5 * time.Second

var ErrClosed = errors.New("host session closed")

// Session is the registered websocket connection to the host. Outbound calls
// are safe for concurrent use.
type Session struct {
	conn       *websocket.Conn
	pluginUUID string
	logger     *slog.Logger

	writeMu sync.Mutex
	closed  bool

	mu      sync.RWMutex
	actions map[string]string
}

// Dial connects to the host on 127.0.0.1 and registers the plugin.
func Dial(ctx context.Context, args LaunchArgs, logger *slog.Logger) (*Session, error) {
	u := url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(args.Port)}
	return DialURL(ctx, u.String(), args, logger)
}

// DialURL is Dial against an explicit websocket URL.
func DialURL(ctx context.Context, wsURL string, args LaunchArgs, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial host: %w", err)
	}

	s := &Session{
		conn:       conn,
		pluginUUID: args.PluginUUID,
		logger:     logger,
		actions:    map[string]string{},
	}
	if err := s.write(registration{Event: args.RegisterEvent, UUID: args.PluginUUID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("register plugin: %w", err)
	}
	logger.Info("registered with host", "url", wsURL, "register_event", args.RegisterEvent)
	return s, nil
}

// Run reads host messages until ctx is done or the connection drops. handle
// is called from the read loop and must not block on further host input.
func (s *Session) Run(ctx context.Context, handle func(context.Context, Inbound)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read host message: %w", err)
		}

		var in Inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			s.logger.Warn("malformed host message", "err", err)
			continue
		}
		s.track(in)
		handle(ctx, in)
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (s *Session) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}

func (s *Session) SetTitle(ctx context.Context, instanceID, title string) error {
	return s.send(ctx, command{
		Event:   commandSetTitle,
		Context: instanceID,
		Payload: titlePayload{Title: title, Target: targetBoth},
	})
}

// SetImage switches the key image. An empty image restores the default one.
func (s *Session) SetImage(ctx context.Context, instanceID, image string) error {
	return s.send(ctx, command{
		Event:   commandSetImage,
		Context: instanceID,
		Payload: imagePayload{Image: image, Target: targetBoth},
	})
}

func (s *Session) ShowAlert(ctx context.Context, instanceID string) error {
	return s.send(ctx, command{Event: commandShowAlert, Context: instanceID})
}

func (s *Session) SendToPropertyInspector(ctx context.Context, instanceID string, payload any) error {
	return s.send(ctx, command{
		Event:   commandSendToPropertyInspector,
		Context: instanceID,
		Action:  s.actionFor(instanceID),
		Payload: payload,
	})
}

// RequestGlobalSettings asks the host to send didReceiveGlobalSettings.
func (s *Session) RequestGlobalSettings(ctx context.Context) error {
	return s.send(ctx, command{Event: commandGetGlobalSettings, Context: s.pluginUUID})
}

func (s *Session) SetGlobalSettings(ctx context.Context, settings model.GlobalSettings) error {
	return s.send(ctx, command{Event: commandSetGlobalSettings, Context: s.pluginUUID, Payload: settings})
}

func (s *Session) send(ctx context.Context, cmd command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(cmd)
}

func (s *Session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *Session) track(in Inbound) {
	if in.Context == "" || in.Action == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch in.Event {
	case EventWillAppear:
		s.actions[in.Context] = in.Action
	case EventWillDisappear:
		delete(s.actions, in.Context)
	}
}

func (s *Session) actionFor(instanceID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actions[instanceID]
}
