// Package config centralizes runtime configuration via environment
// variables with sensible defaults for local development.
package config

import (
	"sync"

	"github.com/spf13/viper"
)

var once sync.Once

// InitConfig binds environment variables and installs defaults. Safe to call
// from multiple packages; only the first call does the work.
func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("listen_addr", "LISTEN_ADDR")
		viper.BindEnv("symbol", "SYMBOL")
		viper.BindEnv("timeframes", "TIMEFRAMES")
		viper.BindEnv("history_limit", "HISTORY_LIMIT")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("binance_rest_url", "BINANCE_REST_URL")
		viper.BindEnv("binance_stream_url", "BINANCE_STREAM_URL")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("telegram_chat_id", "TELEGRAM_CHAT_ID")
		viper.BindEnv("debug", "DEBUG")

		viper.SetDefault("listen_addr", ":8080")
		viper.SetDefault("symbol", "BTCUSDT")
		viper.SetDefault("timeframes", "3m,1h,4h")
		viper.SetDefault("history_limit", 500)
		viper.SetDefault("db_path", "chanyview.db")
		viper.SetDefault("debug", false)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}
