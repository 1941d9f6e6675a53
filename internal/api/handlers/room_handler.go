package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"presence-service/internal/presence"
	"presence-service/internal/repositories/postgres"
)

type RoomHandler struct {
	rooms       *postgres.RoomRepository
	coordinator *presence.Coordinator
}

func NewRoomHandler(rooms *postgres.RoomRepository, coordinator *presence.Coordinator) *RoomHandler {
	return &RoomHandler{rooms: rooms, coordinator: coordinator}
}

// ListPublic returns public rooms with their live occupancy, so the lobby
// renders without waiting for the first allRoomCounts push.
func (h *RoomHandler) ListPublic(c *gin.Context) {
	rooms, err := h.rooms.ListPublic(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}

	counts := h.coordinator.Rooms().Counts()
	type roomView struct {
		ID         string `json:"_id"`
		Name       string `json:"name"`
		Visibility string `json:"visibility"`
		Count      int    `json:"count"`
	}
	views := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, roomView{
			ID:         room.ID,
			Name:       room.Name,
			Visibility: room.Visibility,
			Count:      counts[room.ID],
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": views})
}
