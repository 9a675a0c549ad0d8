package usecase

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"app/internal/domain/model"
	"app/internal/paypal"
	repo "app/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	carts      repo.CartRepository
	cartItems  repo.CartItemRepository
	products   repo.ProductRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) Carts() repo.CartRepository           { return r.carts }
func (r *TxReposMock) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *TxReposMock) Products() repo.ProductRepository     { return r.products }

// =====================
// Repository mocks
// =====================

type CartRepoMock struct{ mock.Mock }

func (m *CartRepoMock) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	args := m.Called(ctx, userID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindByID(ctx context.Context, cartID int64) (model.Cart, error) {
	args := m.Called(ctx, cartID)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) Delete(ctx context.Context, cartID int64) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) UpsertByCartAndProduct(ctx context.Context, cartID int64, productID int64, addQty int64) error {
	args := m.Called(ctx, cartID, productID, addQty)
	return args.Error(0)
}

func (m *CartItemRepoMock) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	args := m.Called(ctx, cartItemID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByID(ctx context.Context, cartItemID int64) error {
	args := m.Called(ctx, cartItemID)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByCartID(ctx context.Context, cartID int64) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

func (m *CartItemRepoMock) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	args := m.Called(ctx, cartItemID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *CartItemRepoMock) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	args := m.Called(ctx, cartItemID, userID)
	return args.Bool(0), args.Error(1)
}

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	os, _ := args.Get(0).([]model.Order)
	return os, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	args := m.Called(ctx, order)
	return args.Get(0).(int64), args.Error(1)
}

func (m *OrderRepoMock) FindByProviderOrderID(ctx context.Context, providerOrderID string) (model.Order, bool, error) {
	args := m.Called(ctx, providerOrderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

// =====================
// PaymentProvider mock
// =====================

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) CreateOrder(ctx context.Context, in paypal.CreateOrderRequest) (paypal.Order, error) {
	args := m.Called(ctx, in)
	o, _ := args.Get(0).(paypal.Order)
	return o, args.Error(1)
}

func (m *ProviderMock) GetOrder(ctx context.Context, orderID string) (paypal.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(paypal.Order)
	return o, args.Error(1)
}

func (m *ProviderMock) CaptureOrder(ctx context.Context, orderID string, src *paypal.PaymentSource) (paypal.Order, error) {
	args := m.Called(ctx, orderID, src)
	o, _ := args.Get(0).(paypal.Order)
	return o, args.Error(1)
}

// =====================
// helpers
// =====================

type checkoutFixture struct {
	uc        *CheckoutUsecase
	tx        *TxManagerMock
	carts     *CartRepoMock
	cartItems *CartItemRepoMock
	products  *ProductRepoMock
	orders    *OrderRepoMock
	items     *OrderItemRepoMock
	txCarts   *CartRepoMock
	txItems   *CartItemRepoMock
	txProds   *ProductRepoMock
	provider  *ProviderMock
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		carts:     &CartRepoMock{},
		cartItems: &CartItemRepoMock{},
		products:  &ProductRepoMock{},
		orders:    &OrderRepoMock{},
		items:     &OrderItemRepoMock{},
		txCarts:   &CartRepoMock{},
		txItems:   &CartItemRepoMock{},
		txProds:   &ProductRepoMock{},
		provider:  &ProviderMock{},
	}
	f.tx = &TxManagerMock{Repos: &TxReposMock{
		orders:     f.orders,
		orderItems: f.items,
		carts:      f.txCarts,
		cartItems:  f.txItems,
		products:   f.txProds,
	}}
	f.uc = NewCheckoutUsecase(f.tx, f.carts, f.cartItems, f.products, f.provider, CheckoutConfig{
		BrandName: "Bazario",
		ClientURL: "https://shop.example.com",
	})
	return f
}

// =====================
// StartCheckout
// =====================

func TestStartCheckout_Unauthorized(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.uc.StartCheckout(context.Background(), 0, "", "")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Status)

	//ストアにもプロバイダにも触れない
	f.carts.AssertNotCalled(t, "FindByUserID", mock.Anything, mock.Anything)
	f.provider.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestStartCheckout_NoCart(t *testing.T) {
	f := newCheckoutFixture()
	f.carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{}, repo.ErrNotFound)

	_, err := f.uc.StartCheckout(context.Background(), 7, "a@example.com", "A")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)

	//リモート呼び出しは発生しない
	f.provider.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestStartCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()
	f.carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{}, nil)

	_, err := f.uc.StartCheckout(context.Background(), 7, "a@example.com", "A")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
	f.provider.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestStartCheckout_Success(t *testing.T) {
	f := newCheckoutFixture()
	f.carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 10, Quantity: 2},
		{ID: 2, CartID: 3, ProductID: 11, Quantity: 1},
	}, nil)
	f.products.On("FindByID", mock.Anything, int64(10)).
		Return(model.Product{ID: 10, Name: "Keyboard", PriceCents: 1999, IsActive: true}, nil)
	f.products.On("FindByID", mock.Anything, int64(11)).
		Return(model.Product{ID: 11, Name: "Mouse pad", PriceCents: 500, IsActive: true}, nil)

	f.provider.On("CreateOrder", mock.Anything, mock.MatchedBy(func(in paypal.CreateOrderRequest) bool {
		return in.Intent == paypal.IntentCapture &&
			len(in.PurchaseUnits) == 1 &&
			in.PurchaseUnits[0].Amount.Value == "44.98" &&
			in.PurchaseUnits[0].ReferenceID == "3"
	})).Return(paypal.Order{
		ID:     "REMOTE-1",
		Status: paypal.StatusCreated,
		Links: []paypal.Link{
			{Href: "https://paypal.example/approve/REMOTE-1", Rel: "approve"},
		},
	}, nil)

	out, err := f.uc.StartCheckout(context.Background(), 7, "a@example.com", "A")
	require.NoError(t, err)

	assert.Equal(t, "REMOTE-1", out.Order.ID)
	assert.Equal(t, "https://paypal.example/approve/REMOTE-1", out.Link)

	//作成段階ではローカルOrderは絶対に作られない
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestStartCheckout_ProviderError(t *testing.T) {
	f := newCheckoutFixture()
	f.carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 10, Quantity: 1},
	}, nil)
	f.products.On("FindByID", mock.Anything, int64(10)).
		Return(model.Product{ID: 10, Name: "Keyboard", PriceCents: 1999, IsActive: true}, nil)
	f.provider.On("CreateOrder", mock.Anything, mock.Anything).
		Return(paypal.Order{}, &paypal.APIError{StatusCode: 422, Body: "INVALID_REQUEST"})

	_, err := f.uc.StartCheckout(context.Background(), 7, "a@example.com", "A")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	//失敗してもローカルには何も書かない
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

// =====================
// ConfirmCheckout
// =====================

func TestConfirmCheckout_Voided(t *testing.T) {
	f := newCheckoutFixture()
	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{ID: "REMOTE-1", Status: paypal.StatusVoided}, nil)

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Status)

	//ローカルOrderは作られず、カートも残る
	f.provider.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything, mock.Anything)
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
	f.txCarts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestConfirmCheckout_NotApprovedYet(t *testing.T) {
	f := newCheckoutFixture()
	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{ID: "REMOTE-1", Status: paypal.StatusCreated}, nil)

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Status)
	f.provider.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmCheckout_RemoteNotFound(t *testing.T) {
	f := newCheckoutFixture()
	f.provider.On("GetOrder", mock.Anything, "NOPE").
		Return(paypal.Order{}, paypal.ErrOrderNotFound)

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "NOPE")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestConfirmCheckout_InvalidID(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "   ")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	f.provider.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
}

func TestConfirmCheckout_UnknownOutcome(t *testing.T) {
	f := newCheckoutFixture()
	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{ID: "REMOTE-1", Status: paypal.StatusApproved}, nil)
	f.provider.On("CaptureOrder", mock.Anything, "REMOTE-1", (*paypal.PaymentSource)(nil)).
		Return(paypal.Order{}, fmt.Errorf("%w: context deadline exceeded", paypal.ErrUnknownOutcome))

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")

	//結果不明はProviderErrorと区別して502で返す
	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, he.Status)
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestConfirmCheckout_CaptureRejected(t *testing.T) {
	f := newCheckoutFixture()
	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{ID: "REMOTE-1", Status: paypal.StatusApproved}, nil)
	f.provider.On("CaptureOrder", mock.Anything, "REMOTE-1", (*paypal.PaymentSource)(nil)).
		Return(paypal.Order{}, &paypal.APIError{StatusCode: 422, Body: "ORDER_NOT_APPROVED"})

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestConfirmCheckout_Settles(t *testing.T) {
	f := newCheckoutFixture()

	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{ID: "REMOTE-1", Status: paypal.StatusApproved}, nil)
	f.provider.On("CaptureOrder", mock.Anything, "REMOTE-1", (*paypal.PaymentSource)(nil)).
		Return(paypal.Order{
			ID:     "REMOTE-1",
			Status: paypal.StatusCompleted,
			PurchaseUnits: []paypal.PurchaseUnit{
				{Amount: paypal.PurchaseAmount{CurrencyCode: "USD", Value: "44.98"}},
			},
		}, nil)

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByProviderOrderID", mock.Anything, "REMOTE-1").Return(model.Order{}, false, nil)
	f.txCarts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.txItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 10, Quantity: 2},
		{ID: 2, CartID: 3, ProductID: 11, Quantity: 1},
	}, nil)
	f.txProds.On("FindByID", mock.Anything, int64(10)).
		Return(model.Product{ID: 10, Name: "Keyboard", PriceCents: 1999}, nil)
	f.txProds.On("FindByID", mock.Anything, int64(11)).
		Return(model.Product{ID: 11, Name: "Mouse pad", PriceCents: 500}, nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.UserID == 7 &&
			o.ProviderOrderID == "REMOTE-1" &&
			o.Status == model.OrderStatusPaid &&
			o.TotalCents == 4498
	})).Return(int64(55), nil)
	f.items.On("CreateBulk", mock.Anything, int64(55), mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 2 &&
			items[0].ProductNameSnapshot == "Keyboard" &&
			items[0].UnitPriceSnapshot == 1999 &&
			items[0].Quantity == 2
	})).Return(nil)
	f.txItems.On("DeleteByCartID", mock.Anything, int64(3)).Return(nil)
	f.txCarts.On("Delete", mock.Anything, int64(3)).Return(nil)

	out, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")
	require.NoError(t, err)

	assert.Equal(t, int64(55), out.ID)
	assert.Equal(t, int64(4498), out.TotalCents)
	assert.Equal(t, "REMOTE-1", out.ProviderOrderID)
	assert.Len(t, out.Items, 2)

	//Order作成とカート削除が同じTxの中で揃って行われた
	f.tx.AssertCalled(t, "WithinTx", mock.Anything)
	f.orders.AssertCalled(t, "Create", mock.Anything, mock.Anything)
	f.txCarts.AssertCalled(t, "Delete", mock.Anything, int64(3))
	f.txItems.AssertCalled(t, "DeleteByCartID", mock.Anything, int64(3))
}

func TestConfirmCheckout_AlreadySettled(t *testing.T) {
	f := newCheckoutFixture()

	//COMPLETED（webhookなどで確定済み）→ captureはもう呼ばない
	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{
			ID:     "REMOTE-1",
			Status: paypal.StatusCompleted,
			PurchaseUnits: []paypal.PurchaseUnit{
				{Amount: paypal.PurchaseAmount{CurrencyCode: "USD", Value: "44.98"}},
			},
		}, nil)

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByProviderOrderID", mock.Anything, "REMOTE-1").
		Return(model.Order{ID: 55, UserID: 7, ProviderOrderID: "REMOTE-1", Status: model.OrderStatusPaid, TotalCents: 4498}, true, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(55)).Return([]model.OrderItem{
		{OrderID: 55, ProductID: 10, ProductNameSnapshot: "Keyboard", UnitPriceSnapshot: 1999, Quantity: 2},
	}, nil)

	out, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")
	require.NoError(t, err)

	assert.Equal(t, int64(55), out.ID)
	f.provider.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.txCarts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestConfirmCheckout_ConcurrentSettleConflict(t *testing.T) {
	f := newCheckoutFixture()

	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{
			ID:     "REMOTE-1",
			Status: paypal.StatusCompleted,
			PurchaseUnits: []paypal.PurchaseUnit{
				{Amount: paypal.PurchaseAmount{CurrencyCode: "USD", Value: "44.98"}},
			},
		}, nil)

	//最初の検索では未確定、Createでunique競合 → 再検索で相手の結果を返す
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByProviderOrderID", mock.Anything, "REMOTE-1").
		Return(model.Order{}, false, nil).Once()
	f.txCarts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	f.txItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: 10, Quantity: 2},
	}, nil)
	f.txProds.On("FindByID", mock.Anything, int64(10)).
		Return(model.Product{ID: 10, Name: "Keyboard", PriceCents: 1999}, nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(0), repo.ErrDuplicate)
	f.orders.On("FindByProviderOrderID", mock.Anything, "REMOTE-1").
		Return(model.Order{ID: 55, UserID: 7, ProviderOrderID: "REMOTE-1", Status: model.OrderStatusPaid, TotalCents: 4498}, true, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(55)).Return([]model.OrderItem{
		{OrderID: 55, ProductID: 10, ProductNameSnapshot: "Keyboard", UnitPriceSnapshot: 1999, Quantity: 2},
	}, nil)

	out, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")
	require.NoError(t, err)

	assert.Equal(t, int64(55), out.ID)
	f.items.AssertNotCalled(t, "CreateBulk", mock.Anything, mock.Anything, mock.Anything)
	f.txCarts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestConfirmCheckout_CartGone(t *testing.T) {
	f := newCheckoutFixture()

	f.provider.On("GetOrder", mock.Anything, "REMOTE-1").
		Return(paypal.Order{
			ID:     "REMOTE-1",
			Status: paypal.StatusCompleted,
			PurchaseUnits: []paypal.PurchaseUnit{
				{Amount: paypal.PurchaseAmount{CurrencyCode: "USD", Value: "10.00"}},
			},
		}, nil)

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByProviderOrderID", mock.Anything, "REMOTE-1").Return(model.Order{}, false, nil)
	f.txCarts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{}, repo.ErrNotFound)

	_, err := f.uc.ConfirmCheckout(context.Background(), 7, "REMOTE-1")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

// =====================
// SettleFromWebhook
// =====================

func TestSettleFromWebhook_AlreadySettled(t *testing.T) {
	f := newCheckoutFixture()

	//カートは消えているが、同じリモート注文のOrderが既にある → 正常終了
	f.carts.On("FindByID", mock.Anything, int64(3)).Return(model.Cart{}, repo.ErrNotFound)
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByProviderOrderID", mock.Anything, "REMOTE-1").
		Return(model.Order{ID: 55, ProviderOrderID: "REMOTE-1"}, true, nil)

	err := f.uc.SettleFromWebhook(context.Background(), "REMOTE-1", "3")
	assert.NoError(t, err)
}

func TestSettleFromWebhook_BadReference(t *testing.T) {
	f := newCheckoutFixture()

	err := f.uc.SettleFromWebhook(context.Background(), "REMOTE-1", "not-a-number")

	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}

func TestUserLocks_Serialize(t *testing.T) {
	var l userLocks

	unlock := l.lock(1)
	done := make(chan struct{})
	go func() {
		u := l.lock(1)
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second lock acquired while first was held")
	default:
	}

	unlock()
	<-done

	//別ユーザーのロックはブロックしない
	u2 := l.lock(2)
	u2()
}
