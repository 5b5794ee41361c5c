package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Record store engines
const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite3"
	EngineMongo    = "mongo"
)

// Blob store drivers
const (
	BlobFS     = "fs"
	BlobGridFS = "gridfs"
	BlobB2     = "b2"
)

type (
	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		RollbarToken     string
		FrontendBaseURL  string
		SendgridApiKey   string
		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		Blob      BlobConfig
		Identity  IdentityConfig
		Reconcile ReconcileConfig
	}

	ServerConfig struct {
		Address            string
		DebugAddress       string
		Host               string
		PublicURL          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		LoginRate          float64 // requests per second, per client IP
		LoginBurst         int
	}

	DatabaseConfig struct {
		Engine     string
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
		Path       string // sqlite3 DSN
		MongoURI   string
	}

	BlobConfig struct {
		Driver    string
		Root      string // fs driver directory
		B2Account string
		B2Key     string
		B2Bucket  string
	}

	// IdentityConfig points at the optional remote login endpoint.
	// An empty BaseURL disables the remote tier.
	IdentityConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	ReconcileConfig struct {
		Schedule string
	}
)

// Address returns host:port of the SQL server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// NewConfig loads the configuration of the current ENV (DEV by default) from the environment,
// after loading `config/.env.<env>` if it exists.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env != "PROD")
	v.SetDefault("app_name", "Clinic")
	v.SetDefault("build", "develop")
	v.SetDefault("secret_key", "t3mp-d3v-k3y#cl1n1c(n0t-f0r-prod)")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("frontend_base_url", "http://localhost:5173")
	v.SetDefault("default_from_email", "Clinic <noreply@localhost>")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug_address", ":8010")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.public_url", "http://localhost:8000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("login_rate", 1.0)
	v.SetDefault("login_burst", 5)
	v.SetDefault("database.engine", EngineMemory)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "clinic")
	v.SetDefault("database.user", "clinic")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disable_tls", true)
	v.SetDefault("database.path", "file:clinic.db?_foreign_keys=on")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("blob.driver", BlobFS)
	v.SetDefault("blob.root", "uploads")
	v.SetDefault("b2.account", "")
	v.SetDefault("b2.key", "")
	v.SetDefault("b2.bucket", "")
	v.SetDefault("identity.base_url", "")
	v.SetDefault("identity.timeout", 5*time.Second)
	v.SetDefault("reconcile.schedule", "@every 10m")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		AppName:          v.GetString("app_name"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secret_key"),
		RollbarToken:     v.GetString("rollbar_token"),
		FrontendBaseURL:  v.GetString("frontend_base_url"),
		SendgridApiKey:   v.GetString("sendgrid_api_key"),
		defaultFromEmail: v.GetString("default_from_email"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debug_address"),
			Host:               v.GetString("server.host"),
			PublicURL:          strings.TrimSuffix(v.GetString("server.public_url"), "/"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			JWTExpirationDelta: v.GetDuration("jwt_expiration_delta"),
			LoginRate:          v.GetFloat64("login_rate"),
			LoginBurst:         v.GetInt("login_burst"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disable_tls"),
			Path:       v.GetString("database.path"),
			MongoURI:   v.GetString("mongo_uri"),
		},
		Blob: BlobConfig{
			Driver:    v.GetString("blob.driver"),
			Root:      v.GetString("blob.root"),
			B2Account: v.GetString("b2.account"),
			B2Key:     v.GetString("b2.key"),
			B2Bucket:  v.GetString("b2.bucket"),
		},
		Identity: IdentityConfig{
			BaseURL: strings.TrimSuffix(v.GetString("identity.base_url"), "/"),
			Timeout: v.GetDuration("identity.timeout"),
		},
		Reconcile: ReconcileConfig{
			Schedule: v.GetString("reconcile.schedule"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: in-memory store, no remote identity tier.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Debug:            false,
		TestMode:         true,
		AppName:          "Clinic",
		Build:            "test",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:5173",
		defaultFromEmail: "Clinic <noreply@localhost>",
		Server: ServerConfig{
			Address:            ":0",
			Host:               "localhost",
			PublicURL:          "http://localhost:8000",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
			LoginRate:          1000,
			LoginBurst:         1000,
		},
		Database:  DatabaseConfig{Engine: EngineMemory},
		Blob:      BlobConfig{Driver: BlobFS},
		Reconcile: ReconcileConfig{Schedule: "@every 10m"},
	}
}
