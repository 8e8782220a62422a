package handler

import (
	"encoding/json"

	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/service"
	internalWS "grant-assistant-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// StreamHandler upgrades clients to the live context stream.
type StreamHandler struct {
	service service.IProposalService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewStreamHandler(svc service.IProposalService, hub *internalWS.Hub, log logger.ILogger) *StreamHandler {
	return &StreamHandler{
		service: svc,
		hub:     hub,
		logger:  log,
	}
}

// ServeWs answers with the current snapshot first, then every write.
func (h *StreamHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	initial, err := json.Marshal(internalWS.Frame{Type: "context", Data: h.service.GetContext(c.UserContext())})
	if err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("StreamHandler", "Starting WebSocket session", map[string]interface{}{"remote": conn.RemoteAddr().String()})
		internalWS.ServeWs(h.hub, conn, initial)
		h.logger.Info("StreamHandler", "WebSocket session ended", map[string]interface{}{"remote": conn.RemoteAddr().String()})
	})(c)
}
