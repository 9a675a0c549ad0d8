package paypal

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	EventCheckoutOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	EventPaymentCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
)

// WebhookEvent はプロバイダがPUSHしてくる通知の共通部分。
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

// WebhookOrderResource はcheckout系イベントのresource。
type WebhookOrderResource struct {
	ID            string         `json:"id"`
	Status        OrderStatus    `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

// VerifyWebhookInput は署名検証APIへの入力。ヘッダ値をそのまま渡す。
type VerifyWebhookInput struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyWebhookResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature は通知の署名をプロバイダAPIで検証する。
// 検証できない通知は処理してはならない。
func (c *Client) VerifyWebhookSignature(ctx context.Context, in VerifyWebhookInput) (bool, error) {
	var out verifyWebhookResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", in, &out, nil, getRetryMax)
	if err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}
