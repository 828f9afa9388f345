package handlers

import (
	"errors"
	"net/http"

	"tailortalk/models"
	"tailortalk/services/booking"
	"tailortalk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatHandler exposes booking conversations over HTTP.
type ChatHandler struct {
	Service booking.Orchestrator
}

func NewChatHandler(svc booking.Orchestrator) *ChatHandler {
	return &ChatHandler{Service: svc}
}

// statusFor maps orchestrator errors onto HTTP statuses. Collaborator failures
// never reach here; they end the conversation with a reply instead.
func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, booking.ErrSessionBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		getLogger(c).Error("Chat request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	utils.JSONError(c, status, booking.UserMessage(err), "")
}

// StartSessionHandler opens a conversation and returns the greeting.
func (h *ChatHandler) StartSessionHandler(c *gin.Context) {
	id, err := h.Service.StartSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.TurnResult{
		SessionID:  id,
		Reply:      booking.Greeting,
		State:      models.StateCollecting,
		NextAction: "provide_details",
	})
}

// TurnHandler handles one typed user message.
func (h *ChatHandler) TurnHandler(c *gin.Context) {
	var req models.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	res, err := h.Service.HandleTurn(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) GetSessionHandler(c *gin.Context) {
	view, err := h.Service.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// CancelSessionHandler cancels and forgets the conversation.
func (h *ChatHandler) CancelSessionHandler(c *gin.Context) {
	res, err := h.Service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
