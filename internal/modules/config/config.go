package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	redisAddrENV      = "REDIS_ADDR"
	databaseDSN       = "DATABASE_DSN"
	jaegerHostENV     = "JAEGER_HOST"
)

// Instrument — метаданные точности одного инструмента. Загрузка с биржи вне
// скоупа движка, поэтому живут в конфиге.
type Instrument struct {
	VenueSymbol    string  `yaml:"venue_symbol"` // символ в нотации биржи, для фида
	TickSize       float64 `yaml:"tick_size"`
	AmountStep     float64 `yaml:"amount_step"`
	MinOrderAmount float64 `yaml:"min_order_amount"`
}

// Config ...
type Config struct {
	// ключевая схема durable-store: strategy:{id}:user:{id}:...
	StrategyID string `yaml:"strategy_id"`
	UserID     string `yaml:"user_id"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	DB string `yaml:"db_dsn"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	Cache struct {
		SyncInterval time.Duration `yaml:"sync_interval"` // период снепшота в durable store
		ExpireTime   time.Duration `yaml:"expire_time"`   // горизонт вытеснения из памяти
	} `yaml:"cache"`

	EMS struct {
		AckTimeout    time.Duration `yaml:"ack_timeout"`    // ожидание регистрации в OMS
		CheckInterval time.Duration `yaml:"check_interval"` // шаг поллинга алгоритмов
		MaxRetries    int           `yaml:"max_retries"`    // транспортные ретраи коннектора
		QueueSize     int           `yaml:"queue_size"`     // глубина очереди на аккаунт
	} `yaml:"ems"`

	Feed struct {
		URL           string        `yaml:"url"`
		ReconnectWait time.Duration `yaml:"reconnect_wait"`
	} `yaml:"feed"`

	Instruments map[string]Instrument `yaml:"instruments"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		StrategyID: getenvDefault("STRATEGY_ID", "default"),
		UserID:     getenvDefault("USER_ID", "default"),
	}
	config.Cache.SyncInterval = durationFromEnv("CACHE_SYNC_INTERVAL", "60s")
	config.Cache.ExpireTime = durationFromEnv("CACHE_EXPIRE_TIME", "1h")
	config.EMS.AckTimeout = durationFromEnv("EMS_ACK_TIMEOUT", "5s")
	config.EMS.CheckInterval = durationFromEnv("EMS_CHECK_INTERVAL", "1s")
	config.EMS.MaxRetries = intFromEnv("EMS_MAX_RETRIES", 3)
	config.EMS.QueueSize = intFromEnv("EMS_QUEUE_SIZE", 128)
	config.Feed.ReconnectWait = durationFromEnv("FEED_RECONNECT_WAIT", "1s")

	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if addr := os.Getenv(redisAddrENV); addr != "" {
		config.Redis.Addr = addr
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if host := os.Getenv(jaegerHostENV); host != "" {
		config.Jaeger.Host = host
	}

	return &config, nil
}

// InstrumentMeta отдаёт метаданные символа; без записи в конфиге — безопасные
// дефолты, чтобы алгоритмы не делили на ноль.
func (c *Config) InstrumentMeta(symbol string) Instrument {
	if m, ok := c.Instruments[symbol]; ok {
		return m
	}
	return Instrument{TickSize: 0.01, AmountStep: 0.001, MinOrderAmount: 0.001}
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
