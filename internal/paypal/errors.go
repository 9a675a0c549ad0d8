package paypal

import (
	"errors"
	"fmt"
)

var (
	// 注文IDがプロバイダ側に存在しない
	ErrOrderNotFound = errors.New("paypal: order not found")

	// captureのタイムアウト等。決済されたかどうか不明なので、
	// 再試行の前に必ずGetOrderで状態を確認すること。
	ErrUnknownOutcome = errors.New("paypal: capture outcome unknown")
)

// APIError はプロバイダが返した非2xxレスポンス。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: api error %d: %s", e.StatusCode, e.Body)
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
