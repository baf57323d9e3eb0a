package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/chat-orchestrator/internal/errs"
	"github.com/psds-microservice/chat-orchestrator/internal/presence"
)

type PresenceHandler struct {
	tracker *presence.Tracker
}

func NewPresenceHandler(tracker *presence.Tracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

type setOnlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

func (h *PresenceHandler) SetOnline(c *gin.Context) {
	var req setOnlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	staffID := c.Param("staff_id")
	if err := h.tracker.SetOnline(c.Request.Context(), staffID, *req.Online); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update presence"})
		return
	}
	row, err := h.tracker.Get(c.Request.Context(), staffID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	if err := h.tracker.Heartbeat(c.Request.Context(), c.Param("staff_id")); err != nil {
		if errors.Is(err, errs.ErrStaffNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "staff not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *PresenceHandler) Get(c *gin.Context) {
	row, err := h.tracker.Get(c.Request.Context(), c.Param("staff_id"))
	if err != nil {
		if errors.Is(err, errs.ErrStaffNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "staff not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *PresenceHandler) List(c *gin.Context) {
	rows, err := h.tracker.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"staff": rows,
		"total": len(rows),
	})
}

func (h *PresenceHandler) Available(c *gin.Context) {
	rows, err := h.tracker.GetAvailableStaff(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list available staff"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"staff": rows,
		"total": len(rows),
	})
}
