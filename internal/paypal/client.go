package paypal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SandboxAPIBase = "https://api-m.sandbox.paypal.com"
	LiveAPIBase    = "https://api-m.paypal.com"
)

// 読み取り系（GET・トークン取得）だけ再試行する。captureは絶対に再試行しない。
const (
	getRetryMax  = 2
	getRetryWait = 300 * time.Millisecond
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Client はPayPal REST APIとの唯一の接点。
// トークンの取得・キャッシュ・期限切れ再取得を呼び出し側から隠す。
type Client struct {
	baseURL     string
	credentials string
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time

	mu    sync.Mutex
	token *accessToken
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = SandboxAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	raw := cfg.ClientID + ":" + cfg.ClientSecret
	return &Client{
		baseURL:     base,
		credentials: base64.StdEncoding.EncodeToString([]byte(raw)),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		now:         time.Now,
	}
}

// ensureToken は有効なトークンを返す。無い・期限切れなら取得し直す。
// mutexを取得したまま更新するので、同時リフレッシュで上書きされることはない。
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.token.expired(c.now()) {
		return c.token.value, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.credentials)

	issuedAt := c.now()
	status, body, err := c.send(req, getRetryMax)
	if err != nil {
		c.token = nil
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		c.token = nil
		c.logger.Warn("paypal token request rejected", "status", status, "body", string(body))
		return "", &APIError{StatusCode: status, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		c.token = nil
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		c.token = nil
		return "", fmt.Errorf("token response missing access_token")
	}

	c.token = &accessToken{
		value:     tr.AccessToken,
		tokenType: tr.TokenType,
		issuedAt:  issuedAt,
		expiresIn: time.Duration(tr.ExpiresIn) * time.Second,
	}
	return c.token.value, nil
}

// CreateOrder はプロバイダ側に注文を作る。
// PayPal-Request-Id でプロバイダ側の重複作成を防ぐ。
func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (Order, error) {
	if len(in.PurchaseUnits) == 0 {
		return Order{}, fmt.Errorf("create order: no purchase units")
	}

	var order Order
	err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", in, &order, map[string]string{
		"PayPal-Request-Id": uuid.NewString(),
	}, 0)
	if err != nil {
		return Order{}, err
	}
	if err := order.validate(); err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder は注文の現在の状態を取得する。読み取り専用なので再試行して良い。
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, fmt.Errorf("get order: empty id")
	}

	var order Order
	err := c.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, &order, nil, getRetryMax)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.StatusCode == http.StatusNotFound {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	if err := order.validate(); err != nil {
		return Order{}, err
	}
	return order, nil
}

// CaptureOrder は決済を確定する。実際にお金が動く操作。
// タイムアウトや接続断は「結果不明」であり、盲目的な再試行は二重請求になる。
func (c *Client) CaptureOrder(ctx context.Context, orderID string, src *PaymentSource) (Order, error) {
	if orderID == "" {
		return Order{}, fmt.Errorf("capture order: empty id")
	}

	// トークン取得はcapture送信前なので、失敗しても結果は確定している
	token, err := c.ensureToken(ctx)
	if err != nil {
		return Order{}, err
	}

	var reqBody io.Reader
	if src != nil {
		raw, err := json.Marshal(src)
		if err != nil {
			return Order{}, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, err := c.send(req, 0)
	if err != nil {
		// リクエストは出たかもしれない。決済されたかはGetOrderで確認するしかない。
		return Order{}, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}
	if status < 200 || status >= 300 {
		// プロバイダが明示的に拒否した場合は結果が確定している
		c.logger.Warn("paypal capture rejected", "order_id", orderID, "status", status, "body", string(body))
		return Order{}, &APIError{StatusCode: status, Body: string(body)}
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		// 2xxは返っているので決済自体は通っている可能性が高い
		return Order{}, fmt.Errorf("%w: decode capture response: %v", ErrUnknownOutcome, err)
	}
	if err := order.validate(); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
	}
	return order, nil
}

// doJSON はトークンを確保してからJSONリクエストを送る。
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, headers map[string]string, retries int) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	status, body, err := c.send(req, retries)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		c.logger.Warn("paypal api rejected request",
			"method", method, "path", path, "status", status, "body", string(body))
		return &APIError{StatusCode: status, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// send はリクエストを実行してボディを読み切る。
// retries > 0 のときだけ、接続エラーと5xxを限定的に再試行する。
func (c *Client) send(req *http.Request, retries int) (int, []byte, error) {
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := getRetryWait * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(wait):
			case <-req.Context().Done():
				return 0, nil, req.Context().Err()
			}
			if req.GetBody != nil {
				b, err := req.GetBody()
				if err != nil {
					return 0, nil, err
				}
				req.Body = b
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 && attempt < retries {
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			continue
		}

		return resp.StatusCode, body, nil
	}

	return 0, nil, lastErr
}
