package handlers

import (
	"errors"
	"net/http"
	"time"

	subscription "github.com/bossbuddy/billing/internal/app/service/subscription"
	usage "github.com/bossbuddy/billing/internal/app/service/usage"

	"github.com/gin-gonic/gin"
)

// userIDParam pulls the caller identity from the X-User-ID header or the
// userId query parameter.
func userIDParam(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return c.Query("userId")
}

// @Summary      Subscription status
// @Description  Returns the caller's current entitlement. Lapsed plans are reported as free immediately.
// @Tags         Subscription
// @Produce      json
// @Param        userId query string false "User id (or X-User-ID header)"
// @Success      200  {object}  types.SubscriptionInfo
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/subscription/status [get]
func ApiSubscriptionStatus(svc *subscription.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDParam(c)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
			return
		}

		info, err := svc.Status(c.Request.Context(), userID)
		if errors.Is(err, subscription.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

type cancelRequest struct {
	UserID string `json:"userId"`
}

type cancelResponse struct {
	Success bool    `json:"success"`
	EndsAt  *string `json:"endsAt,omitempty"`
}

// @Summary      Cancel subscription
// @Description  Cancels the caller's subscription at the provider. Access continues until the paid period ends.
// @Tags         Subscription
// @Produce      json
// @Param        userId query string false "User id (or X-User-ID header)"
// @Success      200  {object}  handlers.cancelResponse
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/subscription/cancel [post]
func ApiSubscriptionCancel(svc *subscription.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDParam(c)
		if userID == "" {
			var req cancelRequest
			if err := c.ShouldBindJSON(&req); err == nil {
				userID = req.UserID
			}
		}
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
			return
		}

		endsAt, err := svc.Cancel(c.Request.Context(), userID)
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No active subscription"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to cancel subscription. Please try again."})
			return
		}

		resp := cancelResponse{Success: true}
		if endsAt != nil {
			s := endsAt.UTC().Format(time.RFC3339)
			resp.EndsAt = &s
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Usage statistics
// @Description  Returns the caller's rewrite counts for the requested period.
// @Tags         Subscription
// @Produce      json
// @Param        userId query string false "User id (or X-User-ID header)"
// @Param        period query string false "day, week or month" default(day)
// @Success      200  {object}  usage.Stats
// @Router       /api/v1/subscription/usage [get]
func ApiSubscriptionUsage(svc *usage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDParam(c)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
			return
		}

		stats, err := svc.GetStats(c.Request.Context(), userID, c.DefaultQuery("period", "day"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, subSvc *subscription.Service, usageSvc *usage.Service) {
	r.GET("/subscription/status", ApiSubscriptionStatus(subSvc))
	r.POST("/subscription/cancel", ApiSubscriptionCancel(subSvc))
	r.GET("/subscription/usage", ApiSubscriptionUsage(usageSvc))
}
