package handler

import (
	"net/http"

	"app/internal/config"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /checkoutのHTTP
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

// DI
func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/checkout")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/create", h.create)
	g.GET("/confirm/:orderId", h.confirm)
}

// POST /checkout/create
// ボディは無し。呼び出し元ユーザーのカートを価格付けしてリモート注文を作る。
func (h *CheckoutHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Signing in is required"})
	}

	email := getUserStringFromContext(c, middleware.CtxUserEmailKey)
	name := getUserStringFromContext(c, middleware.CtxUserNameKey)

	out, err := h.uc.StartCheckout(c.Request().Context(), userID, email, name)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

type confirmResponse struct {
	Message string              `json:"message"`
	Order   usecase.OrderOutput `json:"order"`
}

// GET /checkout/confirm/:orderId
// 承認から戻ってきたクライアントが呼ぶ。成功時201。
func (h *CheckoutHandler) confirm(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Signing in is required"})
	}

	out, err := h.uc.ConfirmCheckout(c.Request().Context(), userID, c.Param("orderId"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, confirmResponse{
		Message: "User has successfully checkout",
		Order:   out,
	})
}
