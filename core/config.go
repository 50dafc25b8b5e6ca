package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		MaxUploadSize             int64
	}

	DatabaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MongoConfig struct {
		URI      string // empty: notifications are kept in the main database
		Database string
	}

	StorageConfig struct {
		Backend     string // local | b2
		LocalRoot   string
		B2AccountID string
		B2AppKey    string
		B2Bucket    string
	}

	OutboxConfig struct {
		Path         string
		PollInterval time.Duration
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		WorkDir          string
		RollbarToken     string
		SendgridApiKey   string
		NotifyByEmail    bool

		Server   ServerConfig
		Database DatabaseConfig
		Mongo    MongoConfig
		Storage  StorageConfig
		Outbox   OutboxConfig
		Retry    RetryPolicy
	}
)

// Address returns the "host:port" of the database server.
func (dbc DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", dbc.Host, dbc.Port)
}

// NewConfig loads the configuration of the current environment (ENV: DEV (default), TEST, QA, PROD).
// values are read from env vars prefixed with the environment name, e.g. PROD_DATABASE_HOST,
// after loading config/.env.<env> if it exists.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	workDir := Getwd()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Classync")
	v.SetDefault("secretKey", "x8!kq2$wz@1bn7&r(ha)e4c+0pm#s9dv%jt6^l3yf-ug5=io")
	v.SetDefault("frontendBaseUrl", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "Classync")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("notifyByEmail", false)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.maxUploadSize", int64(50<<20))

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "classync")
	v.SetDefault("database.user", "classync")
	v.SetDefault("database.password", "classync")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTls", true)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "classync")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.localRoot", filepath.Join(workDir, "media"))
	v.SetDefault("storage.b2AccountId", "")
	v.SetDefault("storage.b2AppKey", "")
	v.SetDefault("storage.b2Bucket", "")

	v.SetDefault("outbox.path", filepath.Join(workDir, "var", "outbox.db"))
	v.SetDefault("outbox.pollInterval", 10*time.Second)

	v.SetDefault("retry.maxAttempts", DefaultRetryPolicy.MaxAttempts)
	v.SetDefault("retry.initialDelay", DefaultRetryPolicy.InitialDelay)
	v.SetDefault("retry.maxDelay", DefaultRetryPolicy.MaxDelay)
	v.SetDefault("retry.backoffFactor", DefaultRetryPolicy.BackoffFactor)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		Env:             env,
		Build:           v.GetString("build"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseUrl"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("defaultFromName"),
			Address: v.GetString("defaultFromEmail"),
		},
		WorkDir:        workDir,
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
		NotifyByEmail:  v.GetBool("notifyByEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			MaxUploadSize:             v.GetInt64("server.maxUploadSize"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTls"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			LocalRoot:   v.GetString("storage.localRoot"),
			B2AccountID: v.GetString("storage.b2AccountId"),
			B2AppKey:    v.GetString("storage.b2AppKey"),
			B2Bucket:    v.GetString("storage.b2Bucket"),
		},
		Outbox: OutboxConfig{
			Path:         v.GetString("outbox.path"),
			PollInterval: v.GetDuration("outbox.pollInterval"),
		},
		Retry: RetryPolicy{
			MaxAttempts:   v.GetInt("retry.maxAttempts"),
			InitialDelay:  v.GetDuration("retry.initialDelay"),
			MaxDelay:      v.GetDuration("retry.maxDelay"),
			BackoffFactor: v.GetFloat64("retry.backoffFactor"),
		},
	}
}

// NewTestConfig returns a Config usable in tests, without touching the environment.
func NewTestConfig() *Config {
	return &Config{
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          "Classync",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Classync", Address: "noreply@localhost"},
		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			MaxUploadSize:             10 << 20,
		},
		Database: DatabaseConfig{Engine: "memory"},
		Retry: RetryPolicy{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}
