package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"swissknife-chat/internal/app"
	"swissknife-chat/internal/transport/http/response"
)

type MemoryHandler struct {
	memoryService *app.MemoryService
}

type PinConversationRequest struct {
	ConversationID uint `json:"conversation_id" binding:"required,gt=0"`
}

func NewMemoryHandler(memoryService *app.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// Pin summarizes a conversation into a memory passage.
func (h *MemoryHandler) Pin(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req PinConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.memoryService.PinConversation(c.Request.Context(), userID, req.ConversationID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrConversationNotFound):
			response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "pin conversation failed")
		}
		return
	}

	response.OK(c, result)
}
