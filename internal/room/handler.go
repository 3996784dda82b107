package room

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"TowerMerge/internal/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// POST /rooms  body: {players, decks?}；调用者必须是房间玩家之一
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !slices.Contains(req.Players, c.GetString(middleware.PlayerKey)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller must be one of the players"})
		return
	}
	room, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, room)
}

// GET /rooms/:id
func (h *Handler) Get(c *gin.Context) {
	room, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, room)
}

// DELETE /rooms/:id  只有房间内玩家可以关闭
func (h *Handler) Release(c *gin.Context) {
	id := c.Param("id")
	room, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if !slices.Contains(room.Players, c.GetString(middleware.PlayerKey)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a player of this room"})
		return
	}
	if err := h.svc.Release(c.Request.Context(), id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPlayerBusy):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidPlayers):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
