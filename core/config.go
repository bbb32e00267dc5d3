package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
	StorageMemory   = "memory"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server   ServerConfig
		Storage  StorageConfig
		Database DatabaseConfig
		Mongo    MongoConfig
		Uploads  UploadsConfig
		Admin    AdminConfig
	}

	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
		BodyLimit          string
	}

	StorageConfig struct {
		Driver string // postgres, mongo, memory
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MongoConfig struct {
		URI      string
		Database string
	}

	UploadsConfig struct {
		Dir         string
		URLPrefix   string
		MaxFileSize int64 // bytes, per file
	}

	// AdminConfig holds the bootstrap admin account used by the seed endpoint.
	AdminConfig struct {
		SeedKey  string
		Roll     string
		Name     string
		Password string
	}
)

func (dc DatabaseConfig) Address() string {
	return dc.Host + ":" + dc.Port
}

// NewConfig reads the configuration from the environment.
// A `config/.env.<env>` file in the project root, if any, is loaded first.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Formify")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.jwtExpirationDelta", 2*time.Hour)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.bodyLimit", "60M") // two 25M files + form fields

	conf.SetDefault("storage.driver", StoragePostgres)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "formify")
	conf.SetDefault("database.user", "formify")
	conf.SetDefault("database.password", "formify")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	conf.SetDefault("mongo.database", "formify")

	conf.SetDefault("uploads.dir", "uploads")
	conf.SetDefault("uploads.urlPrefix", "/uploads")
	conf.SetDefault("uploads.maxFileSize", int64(25<<20))

	conf.SetDefault("admin.seedKey", "")
	conf.SetDefault("admin.roll", "ADMIN001")
	conf.SetDefault("admin.name", "Admin")
	conf.SetDefault("admin.password", "Admin@12345")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
		conf.SetDefault("storage.driver", StorageMemory)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Address:            conf.GetString("server.address"),
			Host:               conf.GetString("server.host"),
			DebugHost:          conf.GetString("server.debugHost"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			BodyLimit:          conf.GetString("server.bodyLimit"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(conf.GetString("storage.driver")),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Mongo: MongoConfig{
			URI:      conf.GetString("mongo.uri"),
			Database: conf.GetString("mongo.database"),
		},
		Uploads: UploadsConfig{
			Dir:         conf.GetString("uploads.dir"),
			URLPrefix:   conf.GetString("uploads.urlPrefix"),
			MaxFileSize: conf.GetInt64("uploads.maxFileSize"),
		},
		Admin: AdminConfig{
			SeedKey:  conf.GetString("admin.seedKey"),
			Roll:     NormalizeRoll(conf.GetString("admin.roll")),
			Name:     conf.GetString("admin.name"),
			Password: conf.GetString("admin.password"),
		},
	}
}
