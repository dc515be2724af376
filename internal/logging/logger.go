// Package logging は zap ロガーの構築と Gin 用のリクエストログミドルウェアを提供します。
package logging

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New はレベルと出力形式を指定して zap.Logger を作成します。
// format は "json" または "console" です。
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Event はイベント名フィールドを作成します。
func Event(name string) zap.Field {
	return zap.String("event", name)
}

// DurationMS はミリ秒単位（小数点以下2桁）の所要時間フィールドを作成します。
func DurationMS(key string, d time.Duration) zap.Field {
	return zap.Float64(key, math.Round(d.Seconds()*100000)/100)
}
