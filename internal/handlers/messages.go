package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"receipt-overseer/internal/service"
)

const defaultHistoryLimit = 50

// MessageHandler serves the shared chat.
type MessageHandler struct {
	chat *service.ChatService
}

func NewMessageHandler(chat *service.ChatService) *MessageHandler {
	return &MessageHandler{chat: chat}
}

type messageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListMessages returns recent history, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	msg, err := h.chat.Post(c.Request.Context(), actorFromContext(c), req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	msg, err := h.chat.Edit(c.Request.Context(), actorFromContext(c), messageID, req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}

	if err := h.chat.Delete(c.Request.Context(), actorFromContext(c), messageID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "message deleted"})
}
