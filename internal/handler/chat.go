package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/chat-orchestrator/internal/chat"
	"github.com/psds-microservice/chat-orchestrator/internal/errs"
)

type ChatHandler struct {
	svc *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func conversationID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

type createConversationRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
}

func (h *ChatHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	conv, err := h.svc.CreateConversation(c.Request.Context(), req.CustomerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ChatHandler) Get(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	conv, err := h.svc.GetConversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	msgs, err := h.svc.ListMessages(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"total":    len(msgs),
	})
}

type customerMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) SendCustomerMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req customerMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	res, err := h.svc.HandleCustomerMessage(c.Request.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, errs.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to handle message"})
		return
	}
	c.JSON(http.StatusOK, res)
}

type staffMessageRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) SendStaffMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req staffMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	msg, err := h.svc.HandleStaffMessage(c.Request.Context(), id, req.StaffID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, errs.ErrNotAssigned):
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation is not assigned to this staff member"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type releaseRequest struct {
	StaffID string `json:"staff_id" binding:"required"`
}

func (h *ChatHandler) Release(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := h.svc.ReleaseToAI(c.Request.Context(), id, req.StaffID); err != nil {
		switch {
		case errors.Is(err, errs.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, errs.ErrNotAssigned):
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation is not assigned to this staff member"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to release conversation"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "return_pending"})
}

func (h *ChatHandler) Close(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	if err := h.svc.CloseConversation(c.Request.Context(), id); err != nil {
		if errors.Is(err, errs.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to close conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}
