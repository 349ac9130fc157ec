package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/kavach/pkg/dispatch"
	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/journal"
	"github.com/teslashibe/kavach/pkg/voice"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	State
	Learning  bool `json:"learning"`
	Connected bool `json:"mqtt_connected"`
	Playing   bool `json:"playing"`
	Clients   int  `json:"clients"`
}

func probe(fn func() bool) bool {
	return fn != nil && fn()
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		State:     s.deps.Display.Snapshot(),
		Learning:  probe(s.deps.Learning),
		Connected: probe(s.deps.Connected),
		Playing:   probe(s.deps.Playing),
		Clients:   s.deps.Hub.ClientCount(),
	})
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	if s.deps.Events == nil {
		return c.JSON([]journal.Entry{})
	}
	limit := c.QueryInt("limit", s.cfg.EventsLimit)
	if limit <= 0 || limit > s.cfg.EventsLimit {
		limit = s.cfg.EventsLimit
	}
	entries, err := s.deps.Events.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Warn("journal query failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(entries)
}

func (s *Server) handleStartLearn(c *fiber.Ctx) error {
	if probe(s.deps.Learning) {
		return fiber.NewError(fiber.StatusConflict, ir.ErrSessionActive.Error())
	}
	if err := s.deps.Controller.StartLearn(c.UserContext()); err != nil {
		if errors.Is(err, ir.ErrSessionActive) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"learning": true})
}

func (s *Server) handleCancelLearn(c *fiber.Ctx) error {
	s.deps.Controller.CancelLearn()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCommand(c *fiber.Ctx) error {
	id, ok := voice.ParseCommand(c.Params("name"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown command "+c.Params("name"))
	}
	cmd, _ := voice.Lookup(id)
	s.deps.Controller.HandleCommand(c.UserContext(), cmd)
	return c.Status(fiber.StatusAccepted).JSON(cmd)
}

func (s *Server) handleButton(c *fiber.Ctx) error {
	b, err := dispatch.ParseButton(c.Params("press"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.deps.Controller.Press(c.UserContext(), b); err != nil {
		if errors.Is(err, dispatch.ErrLearnActive) || errors.Is(err, ir.ErrSessionActive) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"press": b.String()})
}

// handleStatusWS streams state changes; the hub replays the latest state
// on connect.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.deps.Hub.Serve(c)
}
