package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CentsToDecimal はセントを "44.98" 形式の文字列にする。
// floatを経由しない。
func CentsToDecimal(cents int64) string {
	return decimal.NewFromInt(cents).Div(hundred).StringFixed(2)
}

// DecimalToCents は "44.98" 形式の文字列をセントに戻す。
// プロバイダがセント未満の桁を返した場合は四捨五入（round half up）。
func DecimalToCents(value string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal amount %q: %w", value, err)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}
