package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Storage backends accepted by STORAGE_BACKEND and LEDGER_BACKEND.
const (
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; defaults live in the envDefault tags so a local
// run only needs the two token secrets.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"local"` // local | dev | prod
	Port     string `env:"APP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBUser      string `env:"DB_USER" envDefault:"root"`
	DBPass      string `env:"DB_PASS"` // empty allowed
	DBHost      string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort      string `env:"DB_PORT" envDefault:"3306"`
	DBName      string `env:"DB_NAME" envDefault:"library_auth"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	// Secrets for the two token kinds; they must differ.
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET,required,notEmpty"`
	Issuer        string        `env:"JWT_ISSUER" envDefault:"library-auth"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	BcryptCost     int `env:"BCRYPT_COST" envDefault:"10"`
	PasswordMinLen int `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`

	// StorageBackend selects where users live; LedgerBackend may move the
	// refresh token ledger elsewhere (redis) and defaults to StorageBackend.
	StorageBackend string        `env:"STORAGE_BACKEND" envDefault:"mysql"`
	LedgerBackend  string        `env:"LEDGER_BACKEND"`
	SweepInterval  time.Duration `env:"LEDGER_SWEEP_INTERVAL" envDefault:"1h"`
	SweepRetention time.Duration `env:"LEDGER_SWEEP_RETENTION" envDefault:"168h"`

	Redis RedisConfig

	RabbitURL    string `env:"RABBITMQ_URL"` // empty disables session events
	EventsQueue  string `env:"SESSION_EVENTS_QUEUE" envDefault:"session.events"`
	AuditLogPath string `env:"AUDIT_LOG_PATH" envDefault:"logs/session_audit.log"`

	NATSURL           string `env:"NATS_URL"` // empty disables the verify responder
	NATSVerifySubject string `env:"NATS_VERIFY_SUBJECT" envDefault:"auth.verify_token"`
	NATSQueueGroup    string `env:"NATS_QUEUE_GROUP" envDefault:"library-auth"`

	// Bootstrap administrator, created at startup when the email is free.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Load reads .env (when present) and the process environment into a Config
// and validates the combination.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is like Load but exits the process on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate checks cross-field rules that struct tags cannot express.
func (c Config) Validate() error {
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.PasswordMinLen < 1 {
		return fmt.Errorf("invalid PASSWORD_MIN_LENGTH %d", c.PasswordMinLen)
	}
	switch c.StorageBackend {
	case BackendMySQL, BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.Ledger() {
	case BackendMySQL, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if c.Ledger() == BackendMySQL && c.StorageBackend != BackendMySQL {
		return errors.New("LEDGER_BACKEND=mysql requires STORAGE_BACKEND=mysql")
	}
	return nil
}

// Ledger returns the effective refresh token ledger backend.
func (c Config) Ledger() string {
	if c.LedgerBackend == "" {
		return c.StorageBackend
	}
	return c.LedgerBackend
}
