package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/confidant-bot/confidant/internal/dto"
	"github.com/confidant-bot/confidant/internal/models"
	appErrors "github.com/confidant-bot/confidant/pkg/errors"
	"github.com/confidant-bot/confidant/pkg/response"
)

type gameStatsReader interface {
	State(ctx context.Context) (models.GameState, error)
}

type auditLister interface {
	List(ctx context.Context, limit int) ([]models.ModerationEvent, error)
}

// StatusHandler exposes the read-only admin endpoints. audit may be nil
// when the archive is disabled.
type StatusHandler struct {
	game   gameStatsReader
	audit  auditLister
	logger *zap.Logger
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(game gameStatsReader, audit auditLister, logger *zap.Logger) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusHandler{game: game, audit: audit, logger: logger}
}

// Register mounts the admin routes.
func (h *StatusHandler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/game/stats", h.gameStats)
	v1.GET("/moderation/events", h.moderationEvents)
}

func (h *StatusHandler) gameStats(c *gin.Context) {
	state, err := h.game.State(c.Request.Context())
	if err != nil {
		h.logger.Error("read game state", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, dto.GameStatsFromState(state))
}

func (h *StatusHandler) moderationEvents(c *gin.Context) {
	if h.audit == nil {
		response.Error(c, appErrors.ErrUnavailable)
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			response.Error(c, appErrors.ErrValidation)
			return
		}
		limit = parsed
	}

	events, err := h.audit.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list moderation events", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, events)
}
