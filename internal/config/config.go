package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Admin    AdminConfig
	Codes    CodesConfig
	Faucet   FaucetConfig
	Email    EmailConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
	// AllowOrigins — список origin'ов для CORS
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	// Для 'single', если не пуст, используется первый адрес из списка.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single' (для обратной совместимости).
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно). По умолчанию 0 (без ретраев).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff: Минимальный интервал между попытками (в миллисекундах). По умолчанию 8ms.
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`

	// MaxRetryBackoff: Максимальный интервал между попытками (в миллисекундах). По умолчанию 512ms.
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// AdminConfig содержит настройки админ-доступа.
// Key — общий секрет, сравнивается на точное равенство.
// KeyBcryptHash — альтернатива: bcrypt-хеш секрета (тогда Key не обязателен).
type AdminConfig struct {
	Key           string `mapstructure:"key"`
	KeyBcryptHash string `mapstructure:"key_bcrypt_hash"`
	// AlertEmail — адрес для уведомлений о низком балансе кошелька
	AlertEmail string `mapstructure:"alert_email"`
}

// CodesConfig содержит настройки генерации кодов доступа
type CodesConfig struct {
	// GenerateRetries — число повторов генерации при коллизии кода
	GenerateRetries int `mapstructure:"generate_retries"`
}

// FaucetConfig содержит настройки фасета
type FaucetConfig struct {
	// PrivateKey — hex-ключ горячего кошелька (без префикса 0x)
	PrivateKey string `mapstructure:"private_key"`
	// CooldownMinutes — окно кулдауна на пару (chain, address)
	CooldownMinutes int `mapstructure:"cooldown_minutes"`
	// LowBalanceAlertWei — порог баланса кошелька для email-уведомления (decimal string)
	LowBalanceAlertWei string `mapstructure:"low_balance_alert_wei"`
	// Chains — конфигурации сетей, ключ — имя сети
	Chains map[string]ChainConfig `mapstructure:"chains"`
}

// ChainConfig описывает одну EVM-сеть
type ChainConfig struct {
	ChainID int64  `mapstructure:"chain_id"`
	RPCURL  string `mapstructure:"rpc_url"`
	// DripAmountWei — фиксированная сумма выдачи (decimal string)
	DripAmountWei string `mapstructure:"drip_amount_wei"`
	// MinBalanceWei — порог, выше которого выдача не производится (decimal string)
	MinBalanceWei string `mapstructure:"min_balance_wei"`
	// ExplorerURL — база для ссылок на транзакции, например https://sepolia.etherscan.io
	ExplorerURL string `mapstructure:"explorer_url"`
	Enabled     bool   `mapstructure:"enabled"`
}

// EmailConfig содержит настройки отправки почты через Resend
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
	Enabled      bool   `mapstructure:"enabled"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Cooldown возвращает окно кулдауна как Duration
func (f *FaucetConfig) Cooldown() time.Duration {
	if f.CooldownMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(f.CooldownMinutes) * time.Minute
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 15)
	vip.SetDefault("server.writetimeout", 30)
	vip.SetDefault("codes.generate_retries", 5)
	vip.SetDefault("faucet.cooldown_minutes", 1440)

	// 2. Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS") // Для массива строк
	vip.BindEnv("redis.addr", "REDIS_ADDR")   // Для одиночной строки
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции Admin
	vip.BindEnv("admin.key", "ADMIN_KEY")
	vip.BindEnv("admin.key_bcrypt_hash", "ADMIN_KEY_BCRYPT_HASH")
	vip.BindEnv("admin.alert_email", "ADMIN_ALERT_EMAIL")

	// Привязка для секции Faucet
	vip.BindEnv("faucet.private_key", "FAUCET_PRIVATE_KEY")
	vip.BindEnv("faucet.cooldown_minutes", "FAUCET_COOLDOWN_MINUTES")
	vip.BindEnv("faucet.low_balance_alert_wei", "FAUCET_LOW_BALANCE_ALERT_WEI")

	// Привязка для секции Email
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")
	vip.BindEnv("email.enabled", "EMAIL_ENABLED")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// 3. Устанавливаем путь к файлу конфигурации
	if configPath != "" {
		vip.SetConfigFile(configPath)
		// 4. Пытаемся прочитать файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 5. Анмаршалим конфигурацию (Viper объединит значения из файла и привязанных env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Admin Key Set: %t", cfg.Admin.Key != "" || cfg.Admin.KeyBcryptHash != "")
		log.Printf("Faucet Private Key Set: %t", cfg.Faucet.PrivateKey != "")
		log.Printf("Faucet Chains: %d", len(cfg.Faucet.Chains))
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 7. Проверка обязательных параметров
	if cfg.Admin.Key == "" && cfg.Admin.KeyBcryptHash == "" {
		return nil, fmt.Errorf("admin key is required in config (check ADMIN_KEY or ADMIN_KEY_BCRYPT_HASH env vars)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Faucet.PrivateKey == "" {
		return nil, fmt.Errorf("faucet private key is required in config (check FAUCET_PRIVATE_KEY env var)")
	}
	cfg.Faucet.PrivateKey = strings.TrimPrefix(cfg.Faucet.PrivateKey, "0x")

	enabled := 0
	for name, chain := range cfg.Faucet.Chains {
		if !chain.Enabled {
			continue
		}
		if chain.RPCURL == "" || chain.ChainID == 0 || chain.DripAmountWei == "" {
			return nil, fmt.Errorf("chain '%s' is enabled but misconfigured (rpc_url, chain_id and drip_amount_wei are required)", name)
		}
		enabled++
	}
	if enabled == 0 {
		return nil, fmt.Errorf("at least one enabled chain is required in faucet.chains")
	}

	return &cfg, nil
}
