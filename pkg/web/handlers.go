package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gesture/pkg/gesture"
	"github.com/teslashibe/go-gesture/pkg/hub"
)

const maxHistory = 500

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleScene(c *fiber.Ctx) error {
	if s.deps.Scene == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "no scene attached")
	}
	p, ok := s.deps.Scene.Position(s.deps.Object)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "object "+s.deps.Object+" not spawned")
	}
	return c.JSON(fiber.Map{"object": s.deps.Object, "position": p})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.deps.History == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "journal disabled")
	}
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > maxHistory {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be 1-500")
	}
	entries, err := s.deps.History.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Warn("history query", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "history unavailable")
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// handleCommand injects a command through the same path as the socket.
// Unknown tokens still reach the executor so they are logged and counted.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	cmd, ok := gesture.ParseCommand(c.Params("cmd"))
	s.deps.Executor.Execute(string(cmd))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "unknown command",
			"command": string(cmd),
			"valid":   gesture.All,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"command": string(cmd),
		"state":   s.deps.Executor.State(),
	})
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	client.Run()
}
