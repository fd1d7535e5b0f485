// Package cloud provides the WebSocket endpoint cameras stream frames to.
package cloud

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/gate"
	"github.com/teslashibe/go-framegate/pkg/ingest"
	"github.com/teslashibe/go-framegate/pkg/protocol"
	"github.com/teslashibe/go-framegate/pkg/session"
	"github.com/teslashibe/go-framegate/pkg/trigger"
)

// CameraConnection represents a connected camera
type CameraConnection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the camera
func (c *CameraConnection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from cameras. Each connection is bound
// to a session; frames go through that session's detector and the decision
// is written back on the same socket.
type Hub struct {
	sessions *session.Manager
	logger   *slog.Logger

	mu      sync.RWMutex
	cameras map[string]*CameraConnection

	onDecision func(d protocol.DecisionData)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	decisions        atomic.Uint64
	fires            atomic.Uint64
	failures         atomic.Uint64
}

// NewHub creates a new camera hub
func NewHub(sessions *session.Manager) *Hub {
	return &Hub{
		sessions: sessions,
		logger:   log.Component("cloud"),
		cameras:  make(map[string]*CameraConnection),
	}
}

// SetLogger replaces the hub's logger.
func (h *Hub) SetLogger(l *slog.Logger) {
	h.logger = l
}

// OnDecision sets the callback for every decision produced
func (h *Hub) OnDecision(callback func(d protocol.DecisionData)) {
	h.mu.Lock()
	h.onDecision = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/camera", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/camera", websocket.New(h.handleCamera))
	app.Get("/ws/camera/:id", websocket.New(h.handleCamera))
}

// handleCamera handles a camera WebSocket connection
func (h *Hub) handleCamera(c *websocket.Conn) {
	cam := &CameraConnection{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	sess, created, err := h.sessions.GetOrCreate(c.Params("id"))
	if err != nil {
		h.logger.Error("cannot bind session", "error", err)
		msg, _ := protocol.NewErrorMessage(protocol.CodeInternal, err.Error(), 0)
		h.reply(cam, msg)
		return
	}
	cam.SessionID = sess.ID

	h.mu.Lock()
	h.cameras[cam.ID] = cam
	count := len(h.cameras)
	h.mu.Unlock()

	h.logger.Info("camera connected", "conn", cam.ID, "session", sess.ID, "created", created, "total", count)
	if msg, err := protocol.NewSessionMessage(sess.ID, created); err == nil {
		h.reply(cam, msg)
	}

	defer func() {
		h.mu.Lock()
		delete(h.cameras, cam.ID)
		count := len(h.cameras)
		h.mu.Unlock()

		h.logger.Info("camera disconnected", "conn", cam.ID, "session", sess.ID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("camera read error", "conn", cam.ID, "error", err)
			return
		}

		cam.mu.Lock()
		cam.LastSeen = time.Now()
		cam.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(cam, sess, data)
	}
}

// handleMessage processes an incoming message from a camera
func (h *Hub) handleMessage(cam *CameraConnection, sess *session.Session, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.fail(cam, protocol.CodeBadMessage, err, 0)
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		frame, err := msg.GetFrameData()
		if err != nil {
			h.fail(cam, protocol.CodeBadMessage, err, 0)
			return
		}
		ts := frame.TimestampMs
		if ts == 0 && msg.Timestamp > 0 {
			ts = uint64(msg.Timestamp)
		}

		dec, err := sess.Detector.ProcessFrame(frame.Data, ts)
		if err != nil {
			h.fail(cam, ErrorCode(err), err, frame.FrameID)
			return
		}
		h.decide(cam, DecisionData(sess.ID, frame.FrameID, dec))

	case protocol.TypeConfigure:
		cfg, err := msg.GetConfigureData()
		if err != nil {
			h.fail(cam, protocol.CodeBadMessage, err, 0)
			return
		}
		if err := sess.Detector.Configure(ConfigUpdate(cfg)); err != nil {
			h.fail(cam, protocol.CodeInvalidConfig, err, 0)
		}

	case protocol.TypeReset:
		sess.Detector.Reset()
		h.logger.Info("session reset", "session", sess.ID)

	case protocol.TypePing:
		var id string
		if ping, err := msg.GetPingData(); err == nil {
			id = ping.ID
		}
		if pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli()); err == nil {
			h.reply(cam, pong)
		}

	default:
		h.fail(cam, protocol.CodeBadMessage, errors.New("unsupported message type "+string(msg.Type)), 0)
	}
}

func (h *Hub) decide(cam *CameraConnection, d protocol.DecisionData) {
	h.decisions.Add(1)
	if d.Fire {
		h.fires.Add(1)
		h.logger.Debug("trigger fired", "session", d.SessionID, "state", d.SceneState, "confidence", d.Confidence)
	}

	h.mu.RLock()
	cb := h.onDecision
	h.mu.RUnlock()
	if cb != nil {
		cb(d)
	}

	if msg, err := protocol.NewDecisionMessage(d); err == nil {
		h.reply(cam, msg)
	}
}

func (h *Hub) fail(cam *CameraConnection, code string, err error, frameID uint64) {
	h.failures.Add(1)
	h.logger.Debug("camera message rejected", "conn", cam.ID, "code", code, "error", err)
	if msg, err := protocol.NewErrorMessage(code, err.Error(), frameID); err == nil {
		h.reply(cam, msg)
	}
}

func (h *Hub) reply(cam *CameraConnection, msg *protocol.Message) {
	if msg == nil {
		return
	}
	if err := cam.Send(msg); err != nil {
		h.logger.Debug("camera write error", "conn", cam.ID, "error", err)
		return
	}
	h.messagesSent.Add(1)
}

// ErrorCode maps a detector error onto a protocol error code.
func ErrorCode(err error) string {
	var de *ingest.DecodeError
	switch {
	case errors.As(err, &de):
		return protocol.CodeDecode
	case errors.Is(err, trigger.ErrDimensionMismatch):
		return protocol.CodeDimensionMismatch
	case errors.Is(err, gate.ErrInvalidThreshold), errors.Is(err, gate.ErrInvalidConfig):
		return protocol.CodeInvalidConfig
	case errors.Is(err, gate.ErrInvalidTimestamp):
		return protocol.CodeBadMessage
	default:
		return protocol.CodeInternal
	}
}

// DecisionData converts a detector decision into its wire form.
func DecisionData(sessionID string, frameID uint64, d gate.Decision) protocol.DecisionData {
	return protocol.DecisionData{
		SessionID:          sessionID,
		FrameID:            frameID,
		Fire:               d.Fire,
		Confidence:         d.Confidence,
		TrackedObjectCount: d.TrackedObjectCount,
		SceneState:         d.SceneState,
		FrameCount:         d.FrameCount,
		TimestampMs:        d.TimestampMs,
	}
}

// ConfigUpdate converts wire overrides into a detector update.
func ConfigUpdate(c *protocol.ConfigureData) gate.ConfigUpdate {
	return gate.ConfigUpdate{
		BufferDurationMs: c.BufferDurationMs,
		ChangeThreshold:  c.ChangeThreshold,
		FrameIntervalMs:  c.FrameIntervalMs,
		VolatileEnabled:  c.VolatileEnabled,
	}
}

// GetCamera returns a camera connection by ID
func (h *Hub) GetCamera(id string) *CameraConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cameras[id]
}

// CameraCount returns the number of connected cameras
func (h *Hub) CameraCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cameras)
}

// SendToSession sends a message to every camera bound to a session
func (h *Hub) SendToSession(sessionID string, msg *protocol.Message) int {
	h.mu.RLock()
	targets := make([]*CameraConnection, 0, 1)
	for _, c := range h.cameras {
		if c.SessionID == sessionID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			h.logger.Debug("session send error", "conn", c.ID, "error", err)
			continue
		}
		h.messagesSent.Add(1)
		sent++
	}
	return sent
}

// Stats contains hub statistics
type Stats struct {
	CameraCount      int    `json:"camera_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	Decisions        uint64 `json:"decisions"`
	Fires            uint64 `json:"fires"`
	Errors           uint64 `json:"errors"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		CameraCount:      h.CameraCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		Decisions:        h.decisions.Load(),
		Fires:            h.fires.Load(),
		Errors:           h.failures.Load(),
	}
}

// CameraInfo contains info about a connected camera
type CameraInfo struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetCameraInfos returns info about all connected cameras, oldest first
func (h *Hub) GetCameraInfos() []CameraInfo {
	h.mu.RLock()
	infos := make([]CameraInfo, 0, len(h.cameras))
	for _, c := range h.cameras {
		c.mu.Lock()
		infos = append(infos, CameraInfo{
			ID:        c.ID,
			SessionID: c.SessionID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	h.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Connected.Before(infos[j].Connected) })
	return infos
}

// RegisterAPIRoutes registers API routes for camera connections
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	cameras := api.Group("/cameras")

	cameras.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cameras": h.GetCameraInfos(),
			"count":   h.CameraCount(),
		})
	})

	cameras.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
