// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultCredentialsFileName は資格情報ファイルの既定ファイル名です。
const DefaultCredentialsFileName = "unpw"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 資格情報ストア
	CredentialsFile string // username,password 形式のファイルパス

	// サーバー設定
	Port                   string // APIサーバーのポート番号
	GinMode                string // Ginの実行モード (debug, release, test)
	ShutdownTimeoutSeconds int    // グレースフルシャットダウンの猶予（秒）

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console

	// 管理API
	AdminToken string // 空の場合 /admin は登録しない

	// リロード/キュー設定
	QueueRedisURL          string // Asynq と Pub/Sub 用の Redis 接続URL（空なら無効）
	ReloadChannel          string // リロード通知の Pub/Sub チャンネル
	ReloadSchedule         string // 定期リロードの cron 式（例: "@every 5m"）
	ReloadRecordTTLMinutes int    // リロード履歴の保持期間（分）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		CredentialsFile: getEnv("CREDENTIALS_FILE", defaultCredentialsFile()),

		Port:                   getEnv("PORT", "8080"),
		GinMode:                getEnv("GIN_MODE", "debug"),
		ShutdownTimeoutSeconds: getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		QueueRedisURL:          getEnv("QUEUE_REDIS_URL", ""),
		ReloadChannel:          getEnv("RELOAD_CHANNEL", "credentials:reload"),
		ReloadSchedule:         getEnv("RELOAD_SCHEDULE", ""),
		ReloadRecordTTLMinutes: getEnvAsInt("RELOAD_RECORD_TTL_MINUTES", 60),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// defaultCredentialsFile は実行ファイルと同じディレクトリの unpw を返します。
func defaultCredentialsFile() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultCredentialsFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultCredentialsFileName)
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.CredentialsFile == "" {
		return fmt.Errorf("CREDENTIALS_FILE must not be empty")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.ReloadSchedule != "" && c.QueueRedisURL == "" {
		return fmt.Errorf("RELOAD_SCHEDULE requires QUEUE_REDIS_URL")
	}

	// 本番環境では管理トークンの強度をチェックする
	if c.GinMode == "release" {
		if c.AdminToken != "" && len(c.AdminToken) < 16 {
			return fmt.Errorf("ADMIN_TOKEN must be at least 16 characters in release mode")
		}
	}

	return nil
}

// QueueEnabled は Redis を使ったリロード連携が有効かどうかを返します。
func (c *Config) QueueEnabled() bool {
	return c.QueueRedisURL != ""
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
