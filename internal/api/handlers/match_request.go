package handlers

import (
	"context"
	"net/http"

	"github.com/codeduel/duel-backend/internal/api/middleware"
	"github.com/codeduel/duel-backend/internal/models"
	"github.com/gin-gonic/gin"
)

// MatchRequests 친구 대전 신청
type MatchRequests interface {
	Send(ctx context.Context, senderID, receiverID string) (*models.MatchRequest, error)
	Accept(ctx context.Context, requestID, userID string) (*models.MatchRequest, error)
	Reject(ctx context.Context, requestID, userID string) (*models.MatchRequest, error)
	Cancel(ctx context.Context, requestID, userID string) (*models.MatchRequest, error)
	ListPending(ctx context.Context, userID string) (*models.PendingRequests, error)
	MatchState(ctx context.Context, userID string) (*models.UserMatchState, error)
}

type MatchRequestHandler struct {
	requests MatchRequests
}

func NewMatchRequestHandler(requests MatchRequests) *MatchRequestHandler {
	return &MatchRequestHandler{requests: requests}
}

type sendMatchRequestBody struct {
	ReceiverID string `json:"receiverId" binding:"required"`
}

// Send 대전 신청. 상대가 이미 보낸 신청이 있으면 수락된 신청을 반환
func (h *MatchRequestHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var body sendMatchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiverId is required"})
		return
	}

	req, err := h.requests.Send(c.Request.Context(), userID, body.ReceiverID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if req.Status == models.MatchRequestAccepted {
		status = http.StatusOK
	}
	c.JSON(status, req)
}

// Accept 받은 신청 수락
func (h *MatchRequestHandler) Accept(c *gin.Context) {
	h.respond(c, h.requests.Accept)
}

// Reject 받은 신청 거절
func (h *MatchRequestHandler) Reject(c *gin.Context) {
	h.respond(c, h.requests.Reject)
}

// Cancel 보낸 신청 취소
func (h *MatchRequestHandler) Cancel(c *gin.Context) {
	h.respond(c, h.requests.Cancel)
}

func (h *MatchRequestHandler) respond(c *gin.Context, fn func(ctx context.Context, requestID, userID string) (*models.MatchRequest, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	req, err := fn(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ListPending 보낸/받은 대기 중 신청
func (h *MatchRequestHandler) ListPending(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	pending, err := h.requests.ListPending(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// MatchState 큐/매치/신청 상태 요약
func (h *MatchRequestHandler) MatchState(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	state, err := h.requests.MatchState(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return userID, ok
}
