// Package realtime implements the client side of the realtime speech
// provider: a websocket connection that decodes inbound frames into typed
// protocol events, and the token collaborator that issues connection
// credentials.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mubashirsidiki/ai-coach/pkg/realtime/protocol"
)

const (
	// DefaultEndpoint is the provider's realtime websocket endpoint.
	DefaultEndpoint = "wss://api.openai.com/v1/realtime"

	defaultDialTimeout = 15 * time.Second
	writeTimeout       = 5 * time.Second
)

// DialConfig configures a realtime connection.
type DialConfig struct {
	// Endpoint is the websocket URL without the model query parameter.
	// Defaults to DefaultEndpoint.
	Endpoint string

	// Model selects the realtime model, appended as ?model=.
	Model string

	// APIKey authenticates via the provider's websocket subprotocol scheme.
	APIKey string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Conn is a live websocket connection to the provider.
//
// Inbound frames are decoded on a single read loop and delivered in arrival
// order on Events(). Outbound sends are serialized by a write mutex and are
// fire-and-forget from the caller's perspective.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	events chan protocol.ServerEvent
	stop   chan struct{}
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	warnMu  sync.Mutex
	warning string
}

// Dial opens a realtime connection and starts its read loop.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("realtime model must not be empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("realtime api key must not be empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		Subprotocols: []string{
			"realtime",
			"openai-insecure-api-key." + cfg.APIKey,
			"openai-beta.realtime-v1",
		},
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	ws, resp, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial failed: %w", err)
	}

	conn := &Conn{
		ws:     ws,
		logger: logger,
		events: make(chan protocol.ServerEvent, 256),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

// Events yields decoded server events in arrival order. The channel closes
// when the connection ends. There must be exactly one consumer.
func (c *Conn) Events() <-chan protocol.ServerEvent {
	return c.events
}

// IsOpen reports whether the connection accepts outbound messages.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// UpdateSession transmits the session configuration.
func (c *Conn) UpdateSession(session protocol.SessionConfig) error {
	return c.sendJSON(protocol.SessionUpdate{Type: protocol.TypeSessionUpdate, Session: session})
}

// AppendAudio forwards one base64-encoded PCM16 microphone frame.
func (c *Conn) AppendAudio(audio string) error {
	return c.sendJSON(protocol.InputAudioAppend{Type: protocol.TypeInputAudioAppend, Audio: audio})
}

// CreateResponse asks the provider to start speaking.
func (c *Conn) CreateResponse() error {
	return c.sendJSON(protocol.ResponseCreate{
		Type:     protocol.TypeResponseCreate,
		Response: protocol.ResponseSpec{Modalities: []string{"text", "audio"}},
	})
}

// CancelResponse aborts the in-flight response.
func (c *Conn) CancelResponse() error {
	return c.sendJSON(protocol.ResponseCancel{Type: protocol.TypeResponseCancel})
}

func (c *Conn) sendJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("realtime connection is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Close shuts the connection down with a normal-closure code. It is safe to
// call any number of times and concurrently with the read loop.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(2*time.Second),
		)
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	<-c.done
	return nil
}

// CloseWarning returns the human-readable warning for an unexpected close,
// or "" when the connection ended expectedly (or is still open). It is
// meaningful once Events() has closed.
func (c *Conn) CloseWarning() string {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	return c.warning
}

func (c *Conn) setWarning(warning string) {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if c.warning == "" {
		c.warning = warning
	}
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				if warning := classifyCloseError(err); warning != "" {
					c.setWarning(warning)
				}
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := protocol.ParseServerEvent(data)
		if err != nil {
			c.logger.Debug("dropping undecodable realtime frame", "error", err)
			continue
		}
		select {
		case c.events <- event:
		case <-c.stop:
			return
		}
	}
}

// classifyCloseError maps a read-loop error to a user-visible warning.
// Normal and going-away closures are expected and silent; other close codes
// surface their reason unless the reason text is empty or the placeholder
// "Unknown reason", which is noise.
func classifyCloseError(err error) string {
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		return fmt.Sprintf("connection lost: %v", err)
	}
	if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
		return ""
	}
	reason := strings.TrimSpace(closeErr.Text)
	if reason == "" || reason == "Unknown reason" {
		return ""
	}
	return fmt.Sprintf("connection closed: %s", reason)
}
