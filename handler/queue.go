package handler

import (
	"errors"
	"net/http"

	"ticket-queue/repository"
	"ticket-queue/service"

	"github.com/labstack/echo/v4"
)

type QueueHandler struct {
	queue *service.QueueService
}

func ProvideQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

type enqueueResponse struct {
	RoomID   int64 `json:"roomId"`
	UserID   int64 `json:"userId"`
	TicketNo int64 `json:"ticketNo"`
}

// Enqueue: POST /rooms/:roomId/queue (이미 줄에 있으면 기존 번호표와 409)
func (h *QueueHandler) Enqueue(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}

	ticket, err := h.queue.Enqueue(c.Request().Context(), roomID, uid)
	if errors.Is(err, repository.ErrAlreadyQueued) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":    err.Error(),
			"ticketNo": ticket,
		})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, enqueueResponse{RoomID: roomID, UserID: uid, TicketNo: ticket})
}

// Leave handles DELETE /rooms/:roomId/queue.
func (h *QueueHandler) Leave(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}

	prev, err := h.queue.Leave(c.Request().Context(), roomID, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"previousState": prev})
}

type positionResponse struct {
	TicketNo       int64  `json:"ticketNo"`
	State          string `json:"state"`
	EstimatedAhead int64  `json:"estimatedAhead"`
	WaitingTotal   int64  `json:"waitingTotal"`
}

// Position handles GET /rooms/:roomId/queue/position.
func (h *QueueHandler) Position(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}

	pos, err := h.queue.Position(c.Request().Context(), roomID, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, positionResponse{
		TicketNo:       pos.TicketNo,
		State:          string(pos.State),
		EstimatedAhead: pos.EstimatedAhead,
		WaitingTotal:   pos.WaitingTotal,
	})
}
