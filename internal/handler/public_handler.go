package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/repository"
	"github.com/khmedia/khm-api/internal/service"
	"go.uber.org/zap"
)

// Имя query параметра с preview токеном
const previewTokenParam = "preview_token"

type PublicHandler struct {
	posts     repository.PostRepository
	access    service.PreviewAccessService
	analytics service.PreviewAnalyticsService
	logger    *zap.Logger
}

func NewPublicHandler(
	posts repository.PostRepository,
	access service.PreviewAccessService,
	analytics service.PreviewAnalyticsService,
	logger *zap.Logger,
) *PublicHandler {
	return &PublicHandler{
		posts:     posts,
		access:    access,
		analytics: analytics,
		logger:    logger,
	}
}

type PostResponse struct {
	Post    *models.Post `json:"post"`
	Preview bool         `json:"preview"`
}

// GetContent godoc
// @Summary Render a content item
// @Description Serve a published post. With content id and preview_token present, a valid pair serves the post as published for this request only; any invalid pair is a hard 403 with no content body.
// @Tags content
// @Produce json
// @Param id path int true "Content ID"
// @Param preview_token query string false "Preview token"
// @Success 200 {object} PostResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /content/{id} [get]
func (h *PublicHandler) GetContent(c *gin.Context) {
	contentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Content not found",
		})
		return
	}

	presented := c.Query(previewTokenParam)
	if presented == "" {
		// Токена нет - обычные правила видимости, preview путь не участвует
		h.renderPublished(c, contentID)
		return
	}

	link, err := h.access.Verify(c.Request.Context(), contentID, presented)
	if err != nil {
		// Любая причина отказа наружу выглядит одинаково: жёсткий стоп
		// без тела контента, никакого отката на обычный рендер
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Preview link is invalid or expired",
		})
		return
	}

	// Просмотр логируется best-effort: отказ аналитики не должен
	// блокировать рендер страницы посетителю
	if _, err := h.analytics.LogHit(c.Request.Context(), &models.HitInput{
		LinkID:    link.ID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}); err != nil {
		h.logger.Warn("Не удалось записать просмотр preview", zap.Int64("link_id", link.ID), zap.Error(err))
	}

	post, err := h.posts.Find(c.Request.Context(), contentID)
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Content not found",
			})
			return
		}
		h.logger.Error("Failed to load content", zap.Int64("content_id", contentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load content",
		})
		return
	}

	// Видимость переопределяется только в этом ответе: копия поста
	// отдаётся как опубликованная, persisted статус не меняется
	preview := *post
	preview.Status = models.PostStatusPublished
	c.JSON(http.StatusOK, PostResponse{Post: &preview, Preview: true})
}

func (h *PublicHandler) renderPublished(c *gin.Context, contentID int64) {
	post, err := h.posts.Find(c.Request.Context(), contentID)
	if err != nil {
		if !errors.Is(err, repository.ErrPostNotFound) {
			h.logger.Error("Failed to load content", zap.Int64("content_id", contentID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to load content",
			})
			return
		}
		post = nil
	}

	// Неопубликованный пост без preview токена неотличим от несуществующего
	if post == nil || !post.Visible() {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Content not found",
		})
		return
	}

	c.JSON(http.StatusOK, PostResponse{Post: post, Preview: false})
}
