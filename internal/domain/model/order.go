package model

import "time"

type OrderStatus string

const (
	OrderStatusPaid OrderStatus = "PAID"
)

// 決済確定後にのみ作られる購入履歴。更新・削除の経路は持たない。
// ProviderOrderID はPayPal側の注文ID。uniqueIndexで二重計上を防ぐ。
type Order struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64       `gorm:"not null;index" json:"user_id"`
	ProviderOrderID string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"provider_order_id"`
	Status          OrderStatus `gorm:"type:varchar(20);not null" json:"status"`
	TotalCents      int64       `gorm:"not null" json:"total_cents"`
	CreatedAt       time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
