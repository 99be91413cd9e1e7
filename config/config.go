package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	AuthEnable bool   `mapstructure:"AUTH_ENABLE"`
	AuthKey    string `mapstructure:"AUTH_KEY"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	MaxAttempts       int           `mapstructure:"MAX_ATTEMPTS"`
	RetryDelay        time.Duration `mapstructure:"RETRY_DELAY"`
	PipelineTimeout   time.Duration `mapstructure:"PIPELINE_TIMEOUT"`

	TaskTTL   time.Duration `mapstructure:"TASK_TTL"`
	ScriptTTL time.Duration `mapstructure:"SCRIPT_TTL"`

	VideoDir         string        `mapstructure:"VIDEO_DIR"`
	FileRetention    time.Duration `mapstructure:"FILE_RETENTION"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	MaxVideoSize     int64         `mapstructure:"MAX_VIDEO_SIZE"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`

	DownloadTimeout time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	AnalysisTimeout time.Duration `mapstructure:"ANALYSIS_TIMEOUT"`
	SyncTimeout     time.Duration `mapstructure:"SYNC_TIMEOUT"`
	CallbackTimeout time.Duration `mapstructure:"CALLBACK_TIMEOUT"`

	GeminiAPIKey  string `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL string `mapstructure:"GEMINI_BASE_URL"`
	GeminiModel   string `mapstructure:"GEMINI_MODEL"`

	FeishuAppID        string `mapstructure:"FEISHU_APP_ID"`
	FeishuAppSecret    string `mapstructure:"FEISHU_APP_SECRET"`
	FeishuBitableToken string `mapstructure:"FEISHU_BITABLE_APP_TOKEN"`
	FeishuBitableTable string `mapstructure:"FEISHU_BITABLE_TABLE_ID"`
	NotionAPIKey       string `mapstructure:"NOTION_API_KEY"`
	NotionDatabaseID   string `mapstructure:"NOTION_DATABASE_ID"`
}

// stringToDurationHookFunc parses Go duration strings from config values.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable size strings like "20MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	// .env is optional; real deployments set environment variables directly.
	_ = godotenv.Load()

	vp := viper.New()

	vp.SetDefault("PORT", "8000")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")

	vp.SetDefault("REDIS_ADDR", "localhost:6379")
	vp.SetDefault("REDIS_PASSWORD", "")
	vp.SetDefault("REDIS_DB", 0)

	vp.SetDefault("WORKER_CONCURRENCY", 4)
	vp.SetDefault("MAX_ATTEMPTS", 3)
	vp.SetDefault("RETRY_DELAY", "60s")
	vp.SetDefault("PIPELINE_TIMEOUT", "10m")

	vp.SetDefault("TASK_TTL", "168h")   // 7 days
	vp.SetDefault("SCRIPT_TTL", "720h") // 30 days

	vp.SetDefault("VIDEO_DIR", "./storage/videos")
	vp.SetDefault("FILE_RETENTION", "168h")
	vp.SetDefault("SWEEP_INTERVAL", "1h")
	vp.SetDefault("MAX_VIDEO_SIZE", "20MB")
	vp.SetDefault("THROTTLE_FREEDISK", "500MB")

	vp.SetDefault("DOWNLOAD_TIMEOUT", "60s")
	vp.SetDefault("ANALYSIS_TIMEOUT", "300s")
	vp.SetDefault("SYNC_TIMEOUT", "30s")
	vp.SetDefault("CALLBACK_TIMEOUT", "10s")

	vp.SetDefault("GEMINI_API_KEY", "")
	vp.SetDefault("GEMINI_BASE_URL", "https://api.apimart.ai")
	vp.SetDefault("GEMINI_MODEL", "gemini-2.0-flash-exp")

	vp.SetDefault("FEISHU_APP_ID", "")
	vp.SetDefault("FEISHU_APP_SECRET", "")
	vp.SetDefault("FEISHU_BITABLE_APP_TOKEN", "")
	vp.SetDefault("FEISHU_BITABLE_TABLE_ID", "")
	vp.SetDefault("NOTION_API_KEY", "")
	vp.SetDefault("NOTION_DATABASE_ID", "")

	vp.SetConfigName("vidanalyzer_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/vidanalyzer/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("VIDANALYZER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
