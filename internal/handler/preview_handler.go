package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khmedia/khm-api/internal/models"
	"github.com/khmedia/khm-api/internal/service"
	"go.uber.org/zap"
)

// Значения по умолчанию из админки: создание на 48 часов, продление на 24
const (
	defaultCreateHours = 48
	defaultExtendHours = 24
)

type PreviewHandler struct {
	service   service.PreviewLinkService
	analytics service.PreviewAnalyticsService
	baseURL   string
	logger    *zap.Logger
}

func NewPreviewHandler(
	service service.PreviewLinkService,
	analytics service.PreviewAnalyticsService,
	baseURL string,
	logger *zap.Logger,
) *PreviewHandler {
	return &PreviewHandler{
		service:   service,
		analytics: analytics,
		baseURL:   baseURL,
		logger:    logger,
	}
}

type CreatePreviewLinkRequest struct {
	ContentID int64             `json:"content_id" binding:"required"`
	UserID    int64             `json:"user_id"`
	Hours     int               `json:"hours"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type CreatePreviewLinkResponse struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ExtendPreviewLinkRequest struct {
	Hours int `json:"hours"`
}

type PreviewLinkDetailsResponse struct {
	Link *models.PreviewLink `json:"link"`
	Hits []models.PreviewHit `json:"hits"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateLink godoc
// @Summary Create a preview link
// @Description Issue a new expiring preview link for a content item. The raw token appears in this response exactly once.
// @Tags preview-links
// @Accept json
// @Produce json
// @Param request body CreatePreviewLinkRequest true "Link creation request"
// @Success 201 {object} CreatePreviewLinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/preview-links [post]
func (h *PreviewHandler) CreateLink(c *gin.Context) {
	var req CreatePreviewLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	hours := req.Hours
	if hours < 1 {
		hours = defaultCreateHours
	}

	input := &models.CreatePreviewLinkInput{
		ContentID: req.ContentID,
		UserID:    req.UserID,
		ExpiresAt: time.Now().Add(time.Duration(hours) * time.Hour),
		Meta:      req.Meta,
	}

	issued, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		h.logger.Error("Failed to create preview link", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create preview link",
		})
		return
	}

	c.JSON(http.StatusCreated, CreatePreviewLinkResponse{
		ID:        issued.Link.ID,
		Token:     issued.Token,
		Link:      h.buildPreviewURL(issued.Link.ContentID, issued.Token),
		ExpiresAt: issued.Link.ExpiresAt,
	})
}

// RevokeLink godoc
// @Summary Revoke a preview link
// @Description Revoke a preview link by id. Revoking an already revoked link succeeds.
// @Tags preview-links
// @Produce json
// @Param id path int true "Link ID"
// @Success 204 {object} nil
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/preview-links/{id} [delete]
func (h *PreviewHandler) RevokeLink(c *gin.Context) {
	id, ok := h.linkID(c)
	if !ok {
		return
	}

	if err := h.service.RevokeLink(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Preview link not found",
			})
			return
		}
		h.logger.Error("Failed to revoke preview link", zap.Int64("link_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to revoke preview link",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// ExtendLink godoc
// @Summary Extend a preview link
// @Description Move the expiration of a preview link to now plus the given hours
// @Tags preview-links
// @Accept json
// @Produce json
// @Param id path int true "Link ID"
// @Param request body ExtendPreviewLinkRequest true "Extension request"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/preview-links/{id}/extend [post]
func (h *PreviewHandler) ExtendLink(c *gin.Context) {
	id, ok := h.linkID(c)
	if !ok {
		return
	}

	// Пустое тело допустимо - берём срок продления по умолчанию
	var req ExtendPreviewLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Hours = 0
	}
	hours := req.Hours
	if hours < 1 {
		hours = defaultExtendHours
	}

	link, err := h.service.ExtendLink(c.Request.Context(), id, time.Now().Add(time.Duration(hours)*time.Hour))
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Preview link not found",
			})
			return
		}
		h.logger.Error("Failed to extend preview link", zap.Int64("link_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to extend preview link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"expires_at": link.ExpiresAt})
}

// GetLink godoc
// @Summary Get a preview link with recent hits
// @Tags preview-links
// @Produce json
// @Param id path int true "Link ID"
// @Success 200 {object} PreviewLinkDetailsResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/preview-links/{id} [get]
func (h *PreviewHandler) GetLink(c *gin.Context) {
	id, ok := h.linkID(c)
	if !ok {
		return
	}

	link, err := h.service.GetLink(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Preview link not found",
			})
			return
		}
		h.logger.Error("Failed to get preview link", zap.Int64("link_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get preview link",
		})
		return
	}

	c.JSON(http.StatusOK, h.details(c, link))
}

// GetLinkByContent godoc
// @Summary Get the active preview link for a content item
// @Description Returns the most recent active unexpired link, or link: null when none exists
// @Tags preview-links
// @Produce json
// @Param id path int true "Content ID"
// @Success 200 {object} PreviewLinkDetailsResponse
// @Router /api/v1/content/{id}/preview-link [get]
func (h *PreviewHandler) GetLinkByContent(c *gin.Context) {
	contentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_content_id",
			Message: "Content id must be an integer",
		})
		return
	}

	link, err := h.service.GetActiveLink(c.Request.Context(), contentID)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			// Отсутствие активной ссылки - не ошибка, а отдельный пустой результат
			c.JSON(http.StatusOK, PreviewLinkDetailsResponse{Link: nil, Hits: []models.PreviewHit{}})
			return
		}
		h.logger.Error("Failed to get active preview link", zap.Int64("content_id", contentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get active preview link",
		})
		return
	}

	c.JSON(http.StatusOK, h.details(c, link))
}

func (h *PreviewHandler) details(c *gin.Context, link *models.PreviewLink) PreviewLinkDetailsResponse {
	hits, err := h.analytics.GetRecentHits(c.Request.Context(), link.ID, 0)
	if err != nil {
		h.logger.Warn("Failed to get preview hits", zap.Int64("link_id", link.ID), zap.Error(err))
		hits = []models.PreviewHit{}
	}
	return PreviewLinkDetailsResponse{Link: link, Hits: hits}
}

func (h *PreviewHandler) linkID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_link_id",
			Message: "Link id must be an integer",
		})
		return 0, false
	}
	return id, true
}

func (h *PreviewHandler) buildPreviewURL(contentID int64, rawToken string) string {
	return fmt.Sprintf("%s/content/%d?preview_token=%s", h.baseURL, contentID, rawToken)
}
