package paypal

import "fmt"

type OrderIntent string

const (
	IntentCapture   OrderIntent = "CAPTURE"
	IntentAuthorize OrderIntent = "AUTHORIZE"
)

type ItemCategory string

const (
	CategoryDigitalGoods  ItemCategory = "DIGITAL_GOODS"
	CategoryPhysicalGoods ItemCategory = "PHYSICAL_GOODS"
	CategoryDonation      ItemCategory = "DONATION"
)

type OrderStatus string

const (
	StatusCreated             OrderStatus = "CREATED"
	StatusSaved               OrderStatus = "SAVED"
	StatusApproved            OrderStatus = "APPROVED"
	StatusVoided              OrderStatus = "VOIDED"
	StatusCompleted           OrderStatus = "COMPLETED"
	StatusPayerActionRequired OrderStatus = "PAYER_ACTION_REQUIRED"
)

// 未知のステータスは通さない（fail closed）。
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusSaved, StatusApproved,
		StatusVoided, StatusCompleted, StatusPayerActionRequired:
		return true
	}
	return false
}

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type AmountBreakdown struct {
	ItemTotal Amount `json:"item_total"`
}

type PurchaseAmount struct {
	CurrencyCode string           `json:"currency_code"`
	Value        string           `json:"value"`
	Breakdown    *AmountBreakdown `json:"breakdown,omitempty"`
}

type Item struct {
	Name        string       `json:"name"`
	Quantity    string       `json:"quantity"`
	UnitAmount  Amount       `json:"unit_amount"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Category    ItemCategory `json:"category,omitempty"`
}

type PurchaseUnit struct {
	ReferenceID string         `json:"reference_id,omitempty"`
	Description string         `json:"description,omitempty"`
	Items       []Item         `json:"items,omitempty"`
	Amount      PurchaseAmount `json:"amount"`
}

type PayerName struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

type ExperienceContext struct {
	BrandName   string `json:"brand_name,omitempty"`
	LandingPage string `json:"landing_page,omitempty"`
	UserAction  string `json:"user_action,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

type PaypalSource struct {
	ExperienceContext *ExperienceContext `json:"experience_context,omitempty"`
	EmailAddress      string             `json:"email_address,omitempty"`
	Name              *PayerName         `json:"name,omitempty"`
}

type PaymentSource struct {
	Paypal *PaypalSource `json:"paypal,omitempty"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type CreateOrderRequest struct {
	Intent        OrderIntent    `json:"intent"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	PaymentSource *PaymentSource `json:"payment_source,omitempty"`
}

// プロバイダ側の注文。ローカルには保存せず、IDだけ参照する。
type Order struct {
	ID            string         `json:"id"`
	Intent        OrderIntent    `json:"intent,omitempty"`
	Status        OrderStatus    `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	Links         []Link         `json:"links,omitempty"`
	CreateTime    string         `json:"create_time,omitempty"`
	UpdateTime    string         `json:"update_time,omitempty"`
}

// ApproveLink は購入者をリダイレクトするURLを返す。
func (o *Order) ApproveLink() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// validate はレスポンスの形を境界で検証する。
func (o *Order) validate() error {
	if o.ID == "" {
		return fmt.Errorf("order response missing id")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("unrecognized order status %q", o.Status)
	}
	return nil
}
