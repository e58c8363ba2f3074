package handlers

import (
	"net/http"

	eventlog "github.com/bossbuddy/billing/internal/app/service/eventlog"
	"github.com/bossbuddy/billing/internal/app/service/statistics"
	subsvc "github.com/bossbuddy/billing/internal/app/service/subscription"
	webhook "github.com/bossbuddy/billing/internal/app/service/webhook"
	"github.com/bossbuddy/billing/pkg/response"
	"github.com/bossbuddy/billing/pkg/types"

	"github.com/gin-gonic/gin"
)

type ListEventsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// @Summary      List Webhook Events (Admin)
// @Description  Retrieves a paginated and filterable list of stored webhook events.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListEventsRequest true "List events request with filters, pagination, and sorting"
// @Success      200  {object}  response.APIResponse[eventlog.ScanEventsResponse]
// @Router       /api/v1/admin/events/list [post]
func ApiListWebhookEvents(events *eventlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListEventsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := events.ScanEvents(c.Request.Context(), &eventlog.ScanEventsRequest{
			Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type retryEventsResponse struct {
	Applied int `json:"applied"`
}

// @Summary      Retry Unprocessed Events (Admin)
// @Description  Reapplies stored webhook events whose first apply never completed.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[handlers.retryEventsResponse]
// @Router       /api/v1/admin/events/retry [post]
func ApiRetryWebhookEvents(svc *webhook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		applied, err := svc.RetryUnprocessed(c.Request.Context(), 200)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&retryEventsResponse{Applied: applied}))
	}
}

type sweepResponse struct {
	Swept int64 `json:"swept"`
}

// @Summary      Sweep Expired Subscriptions (Admin)
// @Description  Downgrades users whose paid period has lapsed. Intended for a scheduler; safe to run at any time.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  response.APIResponse[handlers.sweepResponse]
// @Router       /api/v1/admin/subscriptions/sweep [post]
func ApiSweepSubscriptions(sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		swept, err := sub.SweepExpired(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&sweepResponse{Swept: swept}))
	}
}

// @Summary      Get Statistics (Admin)
// @Description  Retrieves daily rewrite, subscription and revenue statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.StatisticRequest true "Statistic request parameters"
// @Success      200  {object}  response.APIResponse[statistics.StatisticResponse]
// @Router       /api/v1/admin/get_statistic [post]
func ApiGetStatistic(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, events *eventlog.Service, hooks *webhook.Service, stats *statistics.Service, sub *subsvc.Service) {
	r.POST("/events/list", ApiListWebhookEvents(events))
	r.POST("/events/retry", ApiRetryWebhookEvents(hooks))
	r.POST("/subscriptions/sweep", ApiSweepSubscriptions(sub))
	r.POST("/get_statistic", ApiGetStatistic(stats))
}
