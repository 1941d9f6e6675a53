package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"presence-service/internal/websocket"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades an admitted request. The auth gate has already
// attached the user id; without it the request never reaches this handler.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID, ok := c.Get("user_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	websocket.ServeWS(h.hub, c.Writer, c.Request, userID.(string))
}
