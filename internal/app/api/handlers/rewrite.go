package handlers

import (
	"errors"
	"net/http"

	quota "github.com/bossbuddy/billing/internal/app/service/quota"
	rewrite "github.com/bossbuddy/billing/internal/app/service/rewrite"
	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	"github.com/bossbuddy/billing/internal/platform/generation"
	"github.com/bossbuddy/billing/pkg/config"
	types "github.com/bossbuddy/billing/pkg/types"

	"github.com/gin-gonic/gin"
)

type rewriteRequest struct {
	// UserID may come from the body or the X-User-ID header.
	UserID  string `json:"userId"`
	Message string `json:"message" binding:"required"`
	Tone    string `json:"tone" binding:"required"`
}

type rewriteResponse struct {
	Success   bool   `json:"success"`
	Rewritten string `json:"rewritten,omitempty"`
	// Remaining is the free allowance left today; -1 means unlimited.
	Remaining int64 `json:"remaining"`
}

// @Summary      Rewrite a message
// @Description  Rewrites a workplace message in the requested tone, subject to plan and daily quota.
// @Tags         Rewrite
// @Accept       json
// @Produce      json
// @Param        request body handlers.rewriteRequest true "Rewrite request"
// @Success      200  {object}  handlers.rewriteResponse
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/rewrite [post]
func ApiRewrite(svc *rewrite.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rewriteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID := req.UserID
		if userID == "" {
			userID = userIDParam(c)
		}
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
			return
		}

		res, err := svc.Rewrite(c.Request.Context(), userID, req.Message, types.Tone(req.Tone))
		if err == nil {
			c.JSON(http.StatusOK, rewriteResponse{Success: true, Rewritten: res.Rewritten, Remaining: res.Remaining})
			return
		}

		var denied *rewrite.DeniedError
		switch {
		case errors.As(err, &denied):
			msg := "Daily limit reached. Upgrade to Pro for unlimited rewrites."
			if denied.Decision.Reason == quota.DenyUpgradeRequired {
				msg = "This tone requires a Pro subscription."
			}
			c.JSON(http.StatusForbidden, gin.H{"error": msg, "upgradeUrl": cfg.UpgradeURL})
		case errors.Is(err, rewrite.ErrEmptyMessage),
			errors.Is(err, rewrite.ErrMessageTooLong),
			errors.Is(err, rewrite.ErrInvalidTone):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, subscription.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, generation.ErrUpstream):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to rewrite message. Please try again."})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rewrite message. Please try again."})
		}
	}
}

func RegisterRewriteRoutes(r gin.IRouter, svc *rewrite.Service, cfg *config.Config) {
	r.POST("/rewrite", ApiRewrite(svc, cfg))
}
