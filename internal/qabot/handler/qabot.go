// Package handler provides HTTP handlers for the qabot service.
package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/qabot/internal/qabot/biz"
	"github.com/kart-io/qabot/pkg/llm"
)

// QABotHandler handles qabot HTTP requests.
type QABotHandler struct {
	service       biz.Service
	webhookSecret string
}

// NewQABotHandler creates a new QABotHandler. webhookSecret guards the
// sheet-update webhook; an empty secret disables the check.
func NewQABotHandler(service biz.Service, webhookSecret string) *QABotHandler {
	return &QABotHandler{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChatRequest represents one visitor question. History carries the prior
// turns of the conversation (oldest first) for follow-up questions; it is
// kept client-side, never persisted here.
type ChatRequest struct {
	Query     string        `json:"query" binding:"required"`
	SessionID string        `json:"session_id,omitempty"`
	History   []llm.Message `json:"history,omitempty"`
}

// Chat answers a visitor question.
func (h *QABotHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	resp, err := h.service.Chat(ctx, req.Query, req.SessionID, req.History)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{Code: 408, Message: "chat timed out, please try again"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// webhookRequest is the payload the sheet's edit trigger posts.
type webhookRequest struct {
	Secret string `json:"secret"`
}

// SyncWebhook handles the near-real-time sheet-update notification. The sync
// runs in the background; a sync already in flight is coalesced, since the
// periodic fallback will pick up whatever this trigger saw.
func (h *QABotHandler) SyncWebhook(c *gin.Context) {
	var req webhookRequest
	_ = c.ShouldBindJSON(&req)

	if h.webhookSecret != "" {
		if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.webhookSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Code: 401, Message: "invalid webhook secret"})
			return
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if _, err := h.service.Sync(ctx, false); err != nil {
			if errors.Is(err, biz.ErrSyncInProgress) {
				logger.Infow("webhook sync coalesced, another sync in flight")
				return
			}
			logger.Errorw("webhook-triggered sync failed", "error", err.Error())
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "sync scheduled"})
}

// Reindex forces a full reindex, used for manual recovery. Runs inline so the
// operator sees the report.
func (h *QABotHandler) Reindex(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Minute)
	defer cancel()

	report, err := h.service.Sync(ctx, true)
	if err != nil {
		if errors.Is(err, biz.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, ErrorResponse{Code: 409, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Stats returns index and runtime statistics.
func (h *QABotHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Health is the liveness probe.
func (h *QABotHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
