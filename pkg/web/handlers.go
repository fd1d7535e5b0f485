package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framegate/pkg/cloud"
	"github.com/teslashibe/go-framegate/pkg/gate"
	"github.com/teslashibe/go-framegate/pkg/hub"
	"github.com/teslashibe/go-framegate/pkg/ingest"
	"github.com/teslashibe/go-framegate/pkg/protocol"
	"github.com/teslashibe/go-framegate/pkg/session"
	"github.com/teslashibe/go-framegate/pkg/trigger"
)

// CreateSessionRequest is the optional body of POST /api/sessions
type CreateSessionRequest struct {
	ID string `json:"id"`
}

// FrameRequest is the body of POST /api/sessions/:id/frames
type FrameRequest struct {
	Frame       string `json:"frame"` // base64 encoded image
	TimestampMs uint64 `json:"timestamp_ms"`
	FrameID     uint64 `json:"frame_id"`
}

// StatusResponse reports the scene label and remaining cooldowns
type StatusResponse struct {
	Label                string `json:"label"`
	VolatileRemainingMs  int64  `json:"volatile_remaining_ms"`
	DisturbedRemainingMs int64  `json:"disturbed_remaining_ms"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var de *ingest.DecodeError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &de):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrExists), errors.Is(err, trigger.ErrDimensionMismatch):
		return fiber.StatusConflict
	case errors.Is(err, gate.ErrInvalidThreshold), errors.Is(err, gate.ErrInvalidConfig), errors.Is(err, trigger.ErrInvalidFrame),
		errors.Is(err, gate.ErrInvalidTimestamp):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrClosed), errors.Is(err, trigger.ErrClosed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders every handler error as {"error": "..."}
func errorHandler(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (s *Server) session(c *fiber.Ctx) (*session.Session, error) {
	return s.sessions.Get(c.Params("id"))
}

// handleHealth reports liveness and a few counters
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"cameras":  s.cameras.CameraCount(),
		"clients":  s.events.ClientCount(),
	})
}

// handleRecentEvents returns the most recent decisions
func (s *Server) handleRecentEvents(c *fiber.Ctx) error {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return c.JSON(s.recent)
}

// handleListSessions returns every session
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.sessions.List())
}

// handleCreateSession creates a session, generating an id when none is given
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}

	sess, err := s.sessions.Create(req.ID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(protocol.SessionData{
		SessionID: sess.ID,
		Created:   true,
	})
}

// handleDeleteSession closes and removes a session
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.sessions.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleProcessFrame runs one frame through the session's detector
func (s *Server) handleProcessFrame(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var req FrameRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if req.Frame == "" {
		return fiber.NewError(fiber.StatusBadRequest, "frame is required")
	}

	dec, err := sess.Detector.ProcessFrame(req.Frame, req.TimestampMs)
	if err != nil {
		return err
	}

	d := cloud.DecisionData(sess.ID, req.FrameID, dec)
	s.publish(d)
	return c.JSON(d)
}

// handleConfigure applies detector overrides and returns the new settings
func (s *Server) handleConfigure(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var req protocol.ConfigureData
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := sess.Detector.Configure(cloud.ConfigUpdate(&req)); err != nil {
		return err
	}

	s.logger.Info("session configured", "session", sess.ID)
	return c.JSON(sess.Detector.Settings())
}

// handleReset clears cooldowns, counters and tracking
func (s *Server) handleReset(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	sess.Detector.Reset()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSettings(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Detector.Settings())
}

func (s *Server) handleAnalysis(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Detector.AnalysisInfo())
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	st := sess.Detector.SceneStatus()
	return c.JSON(StatusResponse{
		Label:                st.Label,
		VolatileRemainingMs:  st.VolatileRemaining.Milliseconds(),
		DisturbedRemainingMs: st.DisturbedRemaining.Milliseconds(),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Detector.Stats())
}

// handleEventsWS streams decisions to a dashboard
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	if client == nil {
		return
	}
	client.Run()
}
