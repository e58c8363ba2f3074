package handlers

import (
	"errors"
	"io"
	"net/http"

	webhook "github.com/bossbuddy/billing/internal/app/service/webhook"
	types "github.com/bossbuddy/billing/pkg/types"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps the accepted delivery size.
const maxWebhookBody = 1 << 20

// @Summary      Payment provider webhook
// @Description  Receives signed webhook deliveries from PayPal or Paddle and applies them to the subscription state.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "Payment provider" Enums(paypal, paddle)
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /webhooks/{provider} [post]
func ApiProviderWebhook(svc *webhook.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := types.PaymentProvider(c.Param("provider"))
		if !types.ValidProvider(provider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		traceID := c.GetString("traceID")
		err = svc.HandleDelivery(c.Request.Context(), provider, c.Request.Header, body, traceID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"received": true})
		case errors.Is(err, webhook.ErrBadSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		case errors.Is(err, webhook.ErrMalformedPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed payload"})
		default:
			// The pipeline already logged the failure with full context.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		}
	}
}

func RegisterWebhookRoutes(r gin.IRouter, svc *webhook.Service) {
	r.POST("/webhooks/:provider", ApiProviderWebhook(svc))
}
