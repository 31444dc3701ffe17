package handler

import (
	"net/http"
	"time"

	"ticket-queue/repository"
	"ticket-queue/service"

	"github.com/labstack/echo/v4"
)

type SeatHandler struct {
	seats *service.SeatService
}

func ProvideSeatHandler(seats *service.SeatService) *SeatHandler {
	return &SeatHandler{seats: seats}
}

func seatFromPath(c echo.Context) (repository.SeatKey, bool) {
	matchID, ok := pathID(c, "matchId")
	if !ok {
		return repository.SeatKey{}, false
	}
	seat := repository.SeatKey{
		MatchID:   matchID,
		SectionID: c.Param("section"),
		RowNumber: c.Param("row"),
	}
	return seat, seat.Validate() == nil
}

type ownerResponse struct {
	UserID int64  `json:"userId"`
	Grade  string `json:"grade"`
}

// Hold: POST /matches/:matchId/seats/:section/:row/hold
// 본인 좌석이어도 이미 잡혀 있으면 409 (소유자는 GET .../owner로 확인)
func (h *SeatHandler) Hold(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	seat, ok := seatFromPath(c)
	if !ok {
		return badRequest(c, "invalid seat")
	}
	var body struct {
		Grade      string `json:"grade"`
		TTLSeconds int    `json:"ttlSeconds"`
	}
	if err := c.Bind(&body); err != nil || body.Grade == "" {
		return badRequest(c, "invalid request body")
	}

	ttl := time.Duration(body.TTLSeconds) * time.Second
	won, err := h.seats.TryReserve(c.Request().Context(), seat, uid, body.Grade, ttl)
	if err != nil {
		return writeError(c, err)
	}
	if !won {
		return c.JSON(http.StatusConflict, echo.Map{"reserved": false})
	}
	return c.JSON(http.StatusCreated, echo.Map{"reserved": true})
}

// Release handles DELETE /matches/:matchId/seats/:section/:row.
func (h *SeatHandler) Release(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	seat, ok := seatFromPath(c)
	if !ok {
		return badRequest(c, "invalid seat")
	}

	released, err := h.seats.Release(c.Request().Context(), seat, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Confirm handles POST /matches/:matchId/seats/:section/:row/confirm.
func (h *SeatHandler) Confirm(c echo.Context) error {
	uid, ok := userID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	seat, ok := seatFromPath(c)
	if !ok {
		return badRequest(c, "invalid seat")
	}

	owner, err := h.seats.ConfirmSale(c.Request().Context(), seat, uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ownerResponse{UserID: owner.UserID, Grade: owner.Grade})
}

// Owner handles GET /matches/:matchId/seats/:section/:row/owner.
func (h *SeatHandler) Owner(c echo.Context) error {
	seat, ok := seatFromPath(c)
	if !ok {
		return badRequest(c, "invalid seat")
	}

	owner, err := h.seats.FindOwnerWithGrade(c.Request().Context(), seat)
	if err != nil {
		return writeError(c, err)
	}
	if owner == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat is free"})
	}
	return c.JSON(http.StatusOK, ownerResponse{UserID: owner.UserID, Grade: owner.Grade})
}

// Status handles GET /matches/:matchId/seats/:section/:row.
func (h *SeatHandler) Status(c echo.Context) error {
	seat, ok := seatFromPath(c)
	if !ok {
		return badRequest(c, "invalid seat")
	}

	status, err := h.seats.SeatStatus(c.Request().Context(), seat)
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{
		"matchId":   seat.MatchID,
		"sectionId": seat.SectionID,
		"rowNumber": seat.RowNumber,
		"state":     status.State,
	}
	if status.Owner != nil {
		resp["owner"] = ownerResponse{UserID: status.Owner.UserID, Grade: status.Owner.Grade}
	}
	if status.TTL > 0 {
		resp["ttlMillis"] = status.TTL.Milliseconds()
	}
	return c.JSON(http.StatusOK, resp)
}
