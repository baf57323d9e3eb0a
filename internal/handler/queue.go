package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/chat-orchestrator/internal/errs"
	"github.com/psds-microservice/chat-orchestrator/internal/queue"
)

type QueueHandler struct {
	q *queue.Queue
}

func NewQueueHandler(q *queue.Queue) *QueueHandler {
	return &QueueHandler{q: q}
}

func (h *QueueHandler) Waiting(c *gin.Context) {
	entries, err := h.q.GetWaitingQueue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

func (h *QueueHandler) StaffQueue(c *gin.Context) {
	entries, err := h.q.GetStaffQueue(c.Request.Context(), c.Param("staff_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list staff queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.q.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type assignRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
}

func (h *QueueHandler) Assign(c *gin.Context) {
	conversationID, err := strconv.ParseUint(c.Param("conversation_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.q.AssignToStaff(c.Request.Context(), conversationID, req.StaffID); err != nil {
		if errors.Is(err, errs.ErrQueueEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open queue entry for conversation"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "assigned"})
}
