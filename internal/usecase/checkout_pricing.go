package usecase

import (
	"fmt"
	"strconv"

	"app/internal/domain/model"
	"app/internal/money"
	"app/internal/paypal"
)

const (
	currencyCode = "USD"

	// プロバイダのitem description上限
	maxItemDescriptionLen = 127
)

// CheckoutLine はカート明細と商品をまとめた価格計算の入力。
type CheckoutLine struct {
	Product  model.Product
	Quantity int64
}

// BuildPurchaseUnit はカートをプロバイダのpurchase unitに変換する純粋関数。
// 合計はセント空間で計算し、最後に一度だけ文字列化する。
// amountとbreakdown.item_totalは同じ文字列を共有する（プロバイダが合計一致を検証するため）。
func BuildPurchaseUnit(referenceID string, productURLBase string, lines []CheckoutLine) (paypal.PurchaseUnit, error) {
	if len(lines) == 0 {
		return paypal.PurchaseUnit{}, fmt.Errorf("nothing to checkout")
	}

	items := make([]paypal.Item, 0, len(lines))
	var totalCents int64 = 0

	for _, line := range lines {
		if line.Quantity < 1 {
			return paypal.PurchaseUnit{}, fmt.Errorf("invalid quantity %d for product %d", line.Quantity, line.Product.ID)
		}
		if line.Product.PriceCents < 0 {
			return paypal.PurchaseUnit{}, fmt.Errorf("negative price for product %d", line.Product.ID)
		}

		desc := line.Product.Description
		if len(desc) > maxItemDescriptionLen {
			desc = desc[:maxItemDescriptionLen]
		}

		items = append(items, paypal.Item{
			Name:     line.Product.Name,
			Quantity: strconv.FormatInt(line.Quantity, 10),
			UnitAmount: paypal.Amount{
				CurrencyCode: currencyCode,
				Value:        money.CentsToDecimal(line.Product.PriceCents),
			},
			Description: desc,
			URL:         fmt.Sprintf("%s/products/%d", productURLBase, line.Product.ID),
			Category:    paypal.CategoryPhysicalGoods,
		})

		totalCents += line.Product.PriceCents * line.Quantity
	}

	totalValue := money.CentsToDecimal(totalCents)

	return paypal.PurchaseUnit{
		ReferenceID: referenceID,
		Items:       items,
		Amount: paypal.PurchaseAmount{
			CurrencyCode: currencyCode,
			Value:        totalValue,
			Breakdown: &paypal.AmountBreakdown{
				ItemTotal: paypal.Amount{
					CurrencyCode: currencyCode,
					Value:        totalValue,
				},
			},
		},
	}, nil
}
