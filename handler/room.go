package handler

import (
	"context"
	"net/http"

	"ticket-queue/repository"
	"ticket-queue/service"

	"github.com/labstack/echo/v4"
)

type RoomHandler struct {
	queue     *service.QueueService
	lifecycle *service.LifecycleService
}

func ProvideRoomHandler(queue *service.QueueService, lifecycle *service.LifecycleService) *RoomHandler {
	return &RoomHandler{queue: queue, lifecycle: lifecycle}
}

type roomResponse struct {
	RoomID       int64  `json:"roomId"`
	State        string `json:"state"`
	HallSize     string `json:"hallSize"`
	TotalSeats   int    `json:"totalSeats"`
	Capacity     int64  `json:"capacity"`
	Total        int64  `json:"total"`
	Occupancy    int64  `json:"occupancy"`
	DroppedAhead int64  `json:"droppedAhead"`
}

func toRoomResponse(r *repository.Room) roomResponse {
	return roomResponse{
		RoomID:       r.ID,
		State:        string(r.State),
		HallSize:     string(r.HallSize),
		TotalSeats:   r.TotalSeats,
		Capacity:     r.Capacity,
		Total:        r.Total,
		Occupancy:    r.Occupancy(),
		DroppedAhead: r.DroppedAhead,
	}
}

type roomRequest struct {
	TotalSeats int   `json:"totalSeats"`
	Capacity   int64 `json:"capacity"`
}

// Create handles POST /rooms/:roomId. The room starts PENDING.
func (h *RoomHandler) Create(c echo.Context) error {
	return h.init(c, h.queue.CreateRoom)
}

// Open handles POST /rooms/:roomId/open. Capacity 0 means the hall tier
// default.
func (h *RoomHandler) Open(c echo.Context) error {
	return h.init(c, h.queue.OpenRoom)
}

func (h *RoomHandler) init(c echo.Context, fn func(ctx context.Context, roomID int64, totalSeats int, capacity int64) (*repository.Room, error)) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body roomRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.TotalSeats <= 0 {
		return badRequest(c, "totalSeats must be positive")
	}

	room, err := fn(c.Request().Context(), roomID, body.TotalSeats, body.Capacity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRoomResponse(room))
}

// Get handles GET /rooms/:roomId.
func (h *RoomHandler) Get(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	room, err := h.queue.Room(c.Request().Context(), roomID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRoomResponse(room))
}

// Start handles POST /rooms/:roomId/start.
func (h *RoomHandler) Start(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	if err := h.queue.StartPlaying(c.Request().Context(), roomID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetCapacity handles PUT /rooms/:roomId/capacity.
func (h *RoomHandler) SetCapacity(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body struct {
		Capacity int64 `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	room, err := h.queue.SetCapacity(c.Request().Context(), roomID, body.Capacity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRoomResponse(room))
}

// UpdateSettings handles PUT /rooms/:roomId/settings.
func (h *RoomHandler) UpdateSettings(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body struct {
		RoomName     string `json:"roomName"`
		Difficulty   string `json:"difficulty"`
		MaxUserCount int64  `json:"maxUserCount"`
		StartTime    int64  `json:"startTime"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	err := h.queue.UpdateRoomSettings(c.Request().Context(), roomID, service.RoomSettings{
		RoomName:     body.RoomName,
		Difficulty:   body.Difficulty,
		MaxUserCount: body.MaxUserCount,
		StartTime:    body.StartTime,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeHost handles PUT /rooms/:roomId/host.
func (h *RoomHandler) ChangeHost(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	var body struct {
		PreviousHostID int64 `json:"previousHostId"`
		NewHostID      int64 `json:"newHostId"`
	}
	if err := c.Bind(&body); err != nil || body.NewHostID <= 0 {
		return badRequest(c, "invalid request body")
	}

	if err := h.queue.ChangeHost(c.Request().Context(), roomID, body.PreviousHostID, body.NewHostID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeMatchSetting handles PUT /rooms/:roomId/matches/:matchId/settings.
func (h *RoomHandler) ChangeMatchSetting(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	matchID, ok := pathID(c, "matchId")
	if !ok {
		return badRequest(c, "invalid match id")
	}
	var body struct {
		Settings map[string]string `json:"settings"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.queue.ChangeMatchSetting(c.Request().Context(), roomID, matchID, body.Settings); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EndMatch handles POST /rooms/:roomId/matches/:matchId/end.
func (h *RoomHandler) EndMatch(c echo.Context) error {
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	matchID, ok := pathID(c, "matchId")
	if !ok {
		return badRequest(c, "invalid match id")
	}

	res, err := h.lifecycle.OnMatchEnd(c.Request().Context(), matchID, roomID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"releasedSeats": res.ReleasedSeats,
		"leftUsers":     res.LeftUsers,
	})
}
