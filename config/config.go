package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string
		Mode string // gin mode: debug / release / test
	}
	Log struct {
		Level string
	}
	Database struct {
		DSN     string
		Migrate bool
	}
	Redis struct {
		Addr      string
		Password  string
		DB        int
		KeyPrefix string `mapstructure:"key_prefix"`
	}
	Auth struct {
		Mode          string // session / jwt
		SessionPrefix string `mapstructure:"session_prefix"`
	}
	JWT struct {
		Secret string
	}
	Matchmaking struct {
		MarkerTTL     time.Duration `mapstructure:"marker_ttl"`
		MatchedTTL    time.Duration `mapstructure:"matched_ttl"`
		RoomTTL       time.Duration `mapstructure:"room_ttl"`
		AtomicPairPop bool          `mapstructure:"atomic_pair_pop"`
		RatePerSecond int           `mapstructure:"rate_per_second"`
		RateBurst     int           `mapstructure:"rate_burst"`
		ReapSchedule  string        `mapstructure:"reap_schedule"` // 为空时不清理超时房间
	}
	RTC struct {
		AppID           string        `mapstructure:"app_id"`
		AppCertificate  string        `mapstructure:"app_certificate"`
		CredentialsFile string        `mapstructure:"credentials_file"`
		TokenTTL        time.Duration `mapstructure:"token_ttl"`
	}
	Metrics struct {
		Enabled        bool
		SampleInterval time.Duration `mapstructure:"sample_interval"`
	}
}

var C Config

func Load() {
	// 本地开发时读取 .env，线上直接使用环境变量
	_ = godotenv.Load()
	if err := LoadFrom("config/config.yaml"); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

// LoadFrom 读取指定路径的配置文件并写入 C。文件不存在时只使用默认值与环境变量。
func LoadFrom(path string) error {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VOICEMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 声网凭证沿用旧服务的环境变量名
	_ = v.BindEnv("rtc.app_id", "AGORA_APP_ID")
	_ = v.BindEnv("rtc.app_certificate", "AGORA_APP_CERTIFICATE")

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	C = c
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "voice_match:")
	v.SetDefault("auth.mode", "session")
	v.SetDefault("auth.session_prefix", "session:")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("matchmaking.marker_ttl", 5*time.Minute)
	v.SetDefault("matchmaking.matched_ttl", 2*time.Minute)
	v.SetDefault("matchmaking.room_ttl", 2*time.Hour)
	v.SetDefault("matchmaking.atomic_pair_pop", true)
	v.SetDefault("matchmaking.rate_per_second", 5)
	v.SetDefault("matchmaking.rate_burst", 10)
	v.SetDefault("matchmaking.reap_schedule", "@every 10m")
	v.SetDefault("rtc.credentials_file", "")
	v.SetDefault("rtc.token_ttl", time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.sample_interval", 15*time.Second)
}
