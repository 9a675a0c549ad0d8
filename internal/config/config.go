package config

import (
	"fmt"
	"os"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     string // DBポート

	JWTSecret string // JWT署名シークレット

	PaypalClientID     string // PayPalクライアントID
	PaypalClientSecret string // PayPalクライアントシークレット
	PaypalAPIBase      string // PayPal APIベースURL（既定はsandbox）
	PaypalWebhookID    string // Webhook署名検証用ID（空なら検証なしでACKのみ）

	BrandName string // 決済画面に出すブランド名
	ClientURL string // フロントURL（return/cancel URLに使う）
	GoEnv     string // dev/prod
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port: os.Getenv("PORT"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     os.Getenv("POSTGRES_PORT"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaypalClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
		PaypalClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
		PaypalAPIBase:      os.Getenv("PAYPAL_API_BASE"),
		PaypalWebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),

		BrandName: os.Getenv("BRAND_NAME"),
		ClientURL: os.Getenv("CLIENT_URL"),
		GoEnv:     os.Getenv("GO_ENV"),
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.PaypalClientID == "" {
		return Config{}, fmt.Errorf("PAYPAL_CLIENT_ID is required")
	}
	if cfg.PaypalClientSecret == "" {
		return Config{}, fmt.Errorf("PAYPAL_CLIENT_SECRET is required")
	}
	if cfg.ClientURL == "" {
		return Config{}, fmt.Errorf("CLIENT_URL is required")
	}

	if cfg.BrandName == "" {
		cfg.BrandName = "Bazario"
	}

	return cfg, nil
}
