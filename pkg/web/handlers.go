package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-avatar/pkg/hub"
	"github.com/teslashibe/go-avatar/pkg/media"
)

// handleStatus returns pipeline status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := s.backend.Status()
	st.Viewers = s.Viewers()
	return c.JSON(st)
}

// handlePose returns the latest tracking signal
func (s *Server) handlePose(c *fiber.Ctx) error {
	snap, ok := s.backend.Signal()
	if !ok {
		return c.Status(fiber.StatusNoContent).Send(nil)
	}
	return c.JSON(snap)
}

// mediaKinds maps URL names to tracks. "video" is the published avatar.
var mediaKinds = map[string]media.Kind{
	"mic":    media.Audio,
	"audio":  media.Audio,
	"video":  media.Canvas,
	"canvas": media.Canvas,
}

// handleToggleMedia mutes or unmutes a local track
func (s *Server) handleToggleMedia(c *fiber.Ctx) error {
	kind, ok := mediaKinds[c.Params("kind")]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown track " + c.Params("kind"),
		})
	}

	state, err := s.backend.ToggleMedia(kind)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, media.ErrInvalidTransition) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"track": kind.String(),
		"state": state,
	})
}

// handleHubWS registers a websocket viewer with h
func (s *Server) handleHubWS(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client, err := hub.NewClient(s.ctx, h, conn)
		if err != nil {
			return
		}
		client.Run()
	}
}
