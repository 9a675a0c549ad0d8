package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"app/internal/domain/model"
	"app/internal/money"
	"app/internal/paypal"
	repo "app/internal/repository"
)

// PaymentProvider はPayPal Clientが満たす約束。
type PaymentProvider interface {
	CreateOrder(ctx context.Context, in paypal.CreateOrderRequest) (paypal.Order, error)
	GetOrder(ctx context.Context, orderID string) (paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, src *paypal.PaymentSource) (paypal.Order, error)
}

type CheckoutConfig struct {
	BrandName string
	ClientURL string
}

// CheckoutUsecase はチェックアウトの状態機械を進める。
// ローカルOrderはcapture成功後にのみ作られ、カート削除と同一Txで確定する。
type CheckoutUsecase struct {
	tx        repo.TransactionManager
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	products  repo.ProductRepository
	provider  PaymentProvider
	cfg       CheckoutConfig
	locks     userLocks
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	carts repo.CartRepository,
	cartItems repo.CartItemRepository,
	products repo.ProductRepository,
	provider PaymentProvider,
	cfg CheckoutConfig,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:        tx,
		carts:     carts,
		cartItems: cartItems,
		products:  products,
		provider:  provider,
		cfg:       cfg,
	}
}

// 同一ユーザーの同時チェックアウトで1つのカートから
// リモート注文が2つ作られないようにするためのユーザー単位ロック。
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

type StartCheckoutOutput struct {
	Order paypal.Order `json:"order"`
	Link  string       `json:"link,omitempty"`
}

// StartCheckout はカートを価格付けしてリモート注文を作る。
// ローカルのOrderはここでは絶対に作らない。
func (u *CheckoutUsecase) StartCheckout(ctx context.Context, userID int64, email string, name string) (StartCheckoutOutput, error) {
	if userID <= 0 {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	unlock := u.locks.lock(userID)
	defer unlock()

	cart, err := u.carts.FindByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusNotFound, "You have no items in cart yet.")
	}
	if err != nil {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	cartItems, err := u.cartItems.ListByCartID(ctx, cart.ID)
	if err != nil {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(cartItems) == 0 {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusNotFound, "You have no items in cart yet.")
	}

	lines := make([]CheckoutLine, 0, len(cartItems))
	for _, ci := range cartItems {
		p, err := u.products.FindByID(ctx, ci.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return StartCheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid product in cart")
		}
		if err != nil {
			return StartCheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		lines = append(lines, CheckoutLine{Product: p, Quantity: ci.Quantity})
	}

	unit, err := BuildPurchaseUnit(strconv.FormatInt(cart.ID, 10), u.cfg.ClientURL, lines)
	if err != nil {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusBadRequest, err.Error())
	}

	order, err := u.provider.CreateOrder(ctx, paypal.CreateOrderRequest{
		Intent:        paypal.IntentCapture,
		PurchaseUnits: []paypal.PurchaseUnit{unit},
		PaymentSource: &paypal.PaymentSource{
			Paypal: &paypal.PaypalSource{
				ExperienceContext: &paypal.ExperienceContext{
					BrandName:   u.cfg.BrandName,
					LandingPage: "NO_PREFERENCE",
					UserAction:  "CONTINUE",
					ReturnURL:   u.cfg.ClientURL + "/checkout",
					CancelURL:   u.cfg.ClientURL + "/cart",
				},
				EmailAddress: email,
				Name:         &paypal.PayerName{GivenName: name},
			},
		},
	})
	if err != nil {
		return StartCheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "payment provider error")
	}

	return StartCheckoutOutput{Order: order, Link: order.ApproveLink()}, nil
}

// ConfirmCheckout はリモート注文を確認・captureし、同一Txで
// ローカルOrder作成＋カート削除を行う。部分的な確定状態は残らない。
func (u *CheckoutUsecase) ConfirmCheckout(ctx context.Context, userID int64, providerOrderID string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	providerOrderID = strings.TrimSpace(providerOrderID)
	if providerOrderID == "" || len(providerOrderID) > 64 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	unlock := u.locks.lock(userID)
	defer unlock()

	remote, err := u.provider.GetOrder(ctx, providerOrderID)
	if errors.Is(err, paypal.ErrOrderNotFound) {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "Order does not exists")
	}
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "payment provider error")
	}

	var captured paypal.Order
	switch remote.Status {
	case paypal.StatusCompleted:
		// 既にcapture済み（webhook経由など）。確定処理だけ冪等に行う。
		captured = remote
	case paypal.StatusApproved:
		captured, err = u.provider.CaptureOrder(ctx, providerOrderID, nil)
		if errors.Is(err, paypal.ErrUnknownOutcome) {
			// 決済されたかどうか不明。再試行前にGetOrderでの確認が必須。
			return OrderOutput{}, NewHTTPError(http.StatusBadGateway,
				"payment outcome unknown, check order status before retrying")
		}
		if err != nil {
			return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "payment provider error")
		}
	case paypal.StatusCreated, paypal.StatusPayerActionRequired:
		return OrderOutput{}, NewHTTPError(http.StatusConflict, "order is not approved yet")
	default:
		// VOIDED / SAVED
		return OrderOutput{}, NewHTTPError(http.StatusConflict, "order cannot be captured")
	}

	// 金額は確定したリモート注文から取り直す（作成時の値は信用しない）
	totalCents, err := settledTotalCents(captured, remote)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "payment provider error")
	}

	return u.settle(ctx, userID, providerOrderID, totalCents)
}

// settle はOrder＋OrderItems作成とカート削除を1つのTxで行う。
// provider_order_idのuniqueIndexにより二重計上はできない。
func (u *CheckoutUsecase) settle(ctx context.Context, userID int64, providerOrderID string, totalCents int64) (OrderOutput, error) {
	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 既に確定済みなら同じ結果を返す
		existing, found, err := r.Orders().FindByProviderOrderID(ctx, providerOrderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = toOrderOutput(existing, items)
			return nil
		}

		cart, err := r.Carts().FindByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "Cart does not exists")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if len(cartItems) == 0 {
			return NewHTTPError(http.StatusNotFound, "Cart does not exists")
		}

		//購入時点のスナップショットを作る
		now := time.Now()
		orderItems := make([]model.OrderItem, 0, len(cartItems))
		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.PriceCents,
				Quantity:            ci.Quantity,
				CreatedAt:           now,
			})
		}

		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:          userID,
			ProviderOrderID: providerOrderID,
			Status:          model.OrderStatusPaid,
			TotalCents:      totalCents,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			//同時確定でuniqueIndexに競合したらもう一回検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByProviderOrderID(ctx, providerOrderID)
			if err2 != nil || !found2 {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
			if err3 != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = toOrderOutput(ex2, items2)
			return nil
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//カートを退役させる（Orderの作成と同じTxなので部分状態は残らない）
		if err := r.CartItems().DeleteByCartID(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Carts().Delete(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		created := model.Order{
			ID:              orderID,
			UserID:          userID,
			ProviderOrderID: providerOrderID,
			Status:          model.OrderStatusPaid,
			TotalCents:      totalCents,
			CreatedAt:       now,
		}
		out = toOrderOutput(created, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// SettleFromWebhook はプロバイダのCHECKOUT.ORDER.APPROVED通知から
// 確定処理を進める。カートはpurchase unitのreference_idで引き当てる。
func (u *CheckoutUsecase) SettleFromWebhook(ctx context.Context, providerOrderID string, referenceID string) error {
	cartID, err := strconv.ParseInt(referenceID, 10, 64)
	if err != nil || cartID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid reference id")
	}

	cart, err := u.carts.FindByID(ctx, cartID)
	if errors.Is(err, repo.ErrNotFound) {
		// クライアント側のconfirmが先に走っていれば、カートは消えていて注文がある
		var found bool
		txErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			_, f, err := r.Orders().FindByProviderOrderID(ctx, providerOrderID)
			found = f
			return err
		})
		if txErr == nil && found {
			return nil
		}
		return NewHTTPError(http.StatusNotFound, "Cart does not exists")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	_, err = u.ConfirmCheckout(ctx, cart.UserID, providerOrderID)
	return err
}

// settledTotalCents は確定レスポンスの金額をセントに戻す。
// captureレスポンスに金額が無ければ取得済みのリモート注文から読む。
func settledTotalCents(captured paypal.Order, remote paypal.Order) (int64, error) {
	units := captured.PurchaseUnits
	if len(units) == 0 || units[0].Amount.Value == "" {
		units = remote.PurchaseUnits
	}
	if len(units) == 0 || units[0].Amount.Value == "" {
		return 0, errors.New("no purchase unit amount in confirmed order")
	}
	return money.DecimalToCents(units[0].Amount.Value)
}
