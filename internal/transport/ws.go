package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// WSConfig contains websocket client configuration.
type WSConfig struct {
	URL              string
	AuthToken        string
	SessionID        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// statusMessage is the inbound JSON control frame. The backend sends
// {"type":"ready"} after accepting the handshake, {"type":"stage",
// "stage":"transcription|llm|tts|complete"} as the voice pipeline advances,
// and {"type":"error","message":...} on failures.
type statusMessage struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// handshakeMessage opens a device session.
type handshakeMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// WSClient implements Client over a single persistent websocket connection.
// Reconnection policy lives with the caller; the client only reports
// disconnects through the observer.
type WSClient struct {
	cfg    WSConfig
	logger *slog.Logger

	conn     *websocket.Conn
	writeMu  sync.Mutex // websocket writes are not concurrency-safe
	observer Observer

	connected    bool
	sessionReady bool
	stage        PipelineStage

	readerDone chan struct{}

	mu sync.RWMutex
}

// NewWSClient creates a websocket transport client.
func NewWSClient(cfg WSConfig, logger *slog.Logger) (*WSClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: websocket URL cannot be empty", fault.ErrInvalidArgument)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &WSClient{
		cfg:    cfg,
		logger: logger,
		stage:  StageIdle,
	}, nil
}

// SetObserver installs the inbound observer. Must be called before Connect.
func (c *WSClient) SetObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = obs
}

// Connect dials the backend, sends the session handshake, and starts the
// read loop.
func (c *WSClient) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	conn, _, err := dialer.Dial(c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.sessionReady = false
	c.stage = StageIdle
	c.readerDone = make(chan struct{})
	obs := c.observer
	done := c.readerDone
	c.mu.Unlock()

	c.logger.Info("WebSocket connected", slog.String("url", c.cfg.URL))
	if obs != nil {
		obs.OnStatus(StatusConnected)
	}

	if err := c.sendHandshake(); err != nil {
		c.logger.Error("Handshake send failed", slog.String("error", err.Error()))
		c.teardown(StatusError)
		return err
	}

	go c.readLoop(conn, done)
	return nil
}

// Disconnect closes the connection and waits briefly for the read loop.
func (c *WSClient) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	done := c.readerDone
	c.mu.Unlock()

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), deadline)
	c.writeMu.Unlock()

	_ = conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.logger.Warn("WebSocket read loop did not exit before deadline")
	}

	return nil
}

func (c *WSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *WSClient) SessionReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.sessionReady
}

func (c *WSClient) CanStreamAudio() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.sessionReady && !c.stage.Active()
}

func (c *WSClient) GetPipelineStage() PipelineStage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stage
}

func (c *WSClient) IsPipelineActive() bool {
	return c.GetPipelineStage().Active()
}

// SendAudio transmits one binary PCM chunk.
func (c *WSClient) SendAudio(data []byte, timeout time.Duration) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty audio chunk", fault.ErrInvalidArgument)
	}
	if timeout <= 0 {
		timeout = c.cfg.WriteTimeout
	}
	return c.write(websocket.BinaryMessage, data, timeout)
}

// SendText transmits one JSON control message.
func (c *WSClient) SendText(message string) error {
	if message == "" {
		return fmt.Errorf("%w: empty text message", fault.ErrInvalidArgument)
	}
	return c.write(websocket.TextMessage, []byte(message), c.cfg.WriteTimeout)
}

// SendEndOfStream signals the end of the current utterance.
func (c *WSClient) SendEndOfStream() error {
	c.logger.Info("Sending EOS signal")
	return c.SendText(`{"signal":"EOS"}`)
}

func (c *WSClient) sendHandshake() error {
	hs := handshakeMessage{
		Type:       "handshake",
		SessionID:  c.cfg.SessionID,
		SampleRate: 16000,
		Channels:   1,
	}
	payload, err := json.Marshal(hs)
	if err != nil {
		return fmt.Errorf("marshal handshake: %w", err)
	}

	c.logger.Info("Sending handshake", slog.String("session_id", c.cfg.SessionID))
	return c.write(websocket.TextMessage, payload, c.cfg.WriteTimeout)
}

func (c *WSClient) write(messageType int, data []byte, timeout time.Duration) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("%w: websocket not connected", fault.ErrInvalidState)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// readLoop dispatches inbound frames until the connection dies. Binary
// frames carry audio; an empty binary frame is the backend's end-of-audio
// marker and is forwarded as a non-nil empty slice. Transport loss is
// forwarded as a nil payload so the playback ingest can tell them apart.
func (c *WSClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("WebSocket read loop ending", slog.String("error", err.Error()))
			c.teardown(StatusDisconnected)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.dispatchAudio(payload)
		case websocket.TextMessage:
			c.handleTextMessage(payload)
		}
	}
}

func (c *WSClient) dispatchAudio(payload []byte) {
	c.mu.RLock()
	obs := c.observer
	c.mu.RUnlock()

	if obs == nil {
		c.logger.Warn("No observer registered - dropping inbound audio",
			slog.Int("bytes", len(payload)))
		return
	}

	if payload == nil {
		// Normalize: an empty frame decoded as nil still means end-of-audio
		// here; nil is reserved for transport loss.
		payload = []byte{}
	}
	obs.OnAudioBytes(payload)
}

func (c *WSClient) handleTextMessage(payload []byte) {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("Malformed status message",
			slog.String("error", err.Error()),
			slog.Int("bytes", len(payload)),
		)
		return
	}

	switch msg.Type {
	case "ready":
		c.mu.Lock()
		c.sessionReady = true
		c.mu.Unlock()
		c.logger.Info("Session ready")

	case "stage":
		stage := ParseStage(msg.Stage)
		c.mu.Lock()
		c.stage = stage
		c.mu.Unlock()
		c.logger.Info("Pipeline stage update", slog.String("stage", stage.String()))

	case "error":
		c.mu.Lock()
		c.stage = StageError
		obs := c.observer
		c.mu.Unlock()
		c.logger.Error("Backend error", slog.String("message", msg.Message))
		if obs != nil {
			obs.OnStatus(StatusError)
		}

	default:
		c.logger.Debug("Unhandled status message", slog.String("type", msg.Type))
	}
}

// teardown marks the client disconnected and notifies the observer once.
// The nil audio payload tells the playback ingest the transport is gone, as
// opposed to a normal end-of-audio marker.
func (c *WSClient) teardown(status Status) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.sessionReady = false
	c.stage = StageIdle
	conn := c.conn
	c.conn = nil
	obs := c.observer
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	if wasConnected && obs != nil {
		obs.OnAudioBytes(nil)
		obs.OnStatus(status)
	}
}
