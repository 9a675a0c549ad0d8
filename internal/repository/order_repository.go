package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
)

// uniqueIndex競合
var ErrDuplicate = errors.New("duplicate")

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// 同じリモート注文は二度計上しない
	FindByProviderOrderID(ctx context.Context, providerOrderID string) (model.Order, bool, error)
}
