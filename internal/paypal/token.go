package paypal

import "time"

// プロセス全体で共有するアクセストークン。
// 取得・期限チェック・差し替えはClientのmutexの下で行う。
type accessToken struct {
	value     string
	tokenType string
	issuedAt  time.Time
	expiresIn time.Duration
}

// 期限ギリギリのトークンでリクエストしないよう少し手前で切る
const tokenExpirySkew = 30 * time.Second

func (t *accessToken) expired(now time.Time) bool {
	if t == nil || t.value == "" {
		return true
	}
	return !now.Before(t.issuedAt.Add(t.expiresIn - tokenExpirySkew))
}

type tokenResponse struct {
	Scope       string `json:"scope"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	AppID       string `json:"app_id"`
	ExpiresIn   int64  `json:"expires_in"`
	Nonce       string `json:"nonce"`
}
