package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"app/internal/paypal"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

// WebhookVerifier はpaypal.Clientが満たす約束。
type WebhookVerifier interface {
	VerifyWebhookSignature(ctx context.Context, in paypal.VerifyWebhookInput) (bool, error)
}

// プロバイダからのserver-push通知の受け口。
type WebhookHandler struct {
	uc        *usecase.CheckoutUsecase
	verifier  WebhookVerifier
	webhookID string
	logger    *slog.Logger
}

func NewWebhookHandler(uc *usecase.CheckoutUsecase, verifier WebhookVerifier, webhookID string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		uc:        uc,
		verifier:  verifier,
		webhookID: webhookID,
		logger:    logger,
	}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/paypal", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid body"})
	}

	// Webhook IDが未設定なら受領だけ返す（検証できない通知は処理しない）
	if h.webhookID == "" {
		return c.NoContent(http.StatusOK)
	}

	req := c.Request()
	ok, err := h.verifier.VerifyWebhookSignature(req.Context(), paypal.VerifyWebhookInput{
		AuthAlgo:         req.Header.Get("Paypal-Auth-Algo"),
		CertURL:          req.Header.Get("Paypal-Cert-Url"),
		TransmissionID:   req.Header.Get("Paypal-Transmission-Id"),
		TransmissionSig:  req.Header.Get("Paypal-Transmission-Sig"),
		TransmissionTime: req.Header.Get("Paypal-Transmission-Time"),
		WebhookID:        h.webhookID,
		WebhookEvent:     json.RawMessage(body),
	})
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "verification failed"})
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid signature"})
	}

	var event paypal.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid event"})
	}

	switch event.EventType {
	case paypal.EventCheckoutOrderApproved:
		var resource paypal.WebhookOrderResource
		if err := json.Unmarshal(event.Resource, &resource); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid event resource"})
		}
		if resource.ID == "" || len(resource.PurchaseUnits) == 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid event resource"})
		}

		err := h.uc.SettleFromWebhook(req.Context(), resource.ID, resource.PurchaseUnits[0].ReferenceID)
		if err != nil {
			h.logger.Warn("webhook settlement failed",
				"event_id", event.ID, "order_id", resource.ID, "error", err)
			//非2xxを返すとプロバイダが再送してくる
			return writeError(c, err)
		}
		return c.NoContent(http.StatusOK)

	default:
		//関知しないイベントは受領だけ返す
		return c.NoContent(http.StatusOK)
	}
}
