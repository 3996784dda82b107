package manager

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"TowerMerge/internal/game/engine"
	"TowerMerge/internal/game/rules"
	"TowerMerge/internal/middleware"
)

type Handler struct {
	mgr   *GameManager
	costs rules.CostSchedule
}

func NewHandler(mgr *GameManager, costs rules.CostSchedule) *Handler {
	return &Handler{mgr: mgr, costs: costs}
}

// GET /rooms/:id/state  当前玩家视图
func (h *Handler) State(c *gin.Context) {
	view, err := h.mgr.Snapshot(c.Request.Context(), c.Param("id"), c.GetString(middleware.PlayerKey))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

type finishRequest struct {
	Winner string `json:"winner"`
}

// POST /internal/rooms/:id/finish  body: {winner}；winner 为空表示无胜者
// 胜负由外部裁定，只接受 ServiceAuthMiddleware 验证过的服务调用
func (h *Handler) Finish(c *gin.Context) {
	if c.GetString(middleware.ServiceKey) == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only a trusted service can finish a match"})
		return
	}
	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.mgr.Finish(c.Request.Context(), c.Param("id"), req.Winner)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /economy/tower-cost?current=5&last=2
func (h *Handler) TowerCost(c *gin.Context) {
	current, err1 := strconv.Atoi(c.Query("current"))
	last, err2 := strconv.Atoi(c.DefaultQuery("last", "0"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current and last must be integers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current": current,
		"last":    last,
		"cost":    h.costs.Cost(current, last),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoMatch):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownPlayer):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrStopped):
		return http.StatusGone
	case engine.IsRejection(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
