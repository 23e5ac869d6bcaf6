package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Log        LogConfig        `mapstructure:"log"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Trip       TripConfig       `mapstructure:"trip"`
	Map        MapConfig        `mapstructure:"map"`
	Fixtures   FixturesConfig   `mapstructure:"fixtures"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type SimulationConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	Jitter       float64       `mapstructure:"jitter" validate:"gt=0"`
	Seed         int64         `mapstructure:"seed"`
	DemoVehicles int           `mapstructure:"demo_vehicles" validate:"gte=0"`
}

type AuthConfig struct {
	Delay time.Duration `mapstructure:"delay" validate:"gte=0"`
}

type TripConfig struct {
	HistoryLimit      int           `mapstructure:"history_limit" validate:"gt=0"`
	PermissionTimeout time.Duration `mapstructure:"permission_timeout" validate:"gt=0"`
	WatchTimeout      time.Duration `mapstructure:"watch_timeout" validate:"gt=0"`
	WatchMaximumAge   time.Duration `mapstructure:"watch_maximum_age" validate:"gte=0"`
}

type MapConfig struct {
	TileURL         string  `mapstructure:"tile_url"`
	Attribution     string  `mapstructure:"attribution"`
	CenterLatitude  float64 `mapstructure:"center_latitude" validate:"gte=-90,lte=90"`
	CenterLongitude float64 `mapstructure:"center_longitude" validate:"gte=-180,lte=180"`
	Zoom            int     `mapstructure:"zoom" validate:"gte=1,lte=19"`
	GeoIndex        string  `mapstructure:"geo_index" validate:"oneof=rtree quadtree"`
	AverageSpeedKmh float64 `mapstructure:"average_speed_kmh" validate:"gt=0"`
}

type FixturesConfig struct {
	File string `mapstructure:"file"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 64)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("simulation.tick_interval", 10*time.Second)
	v.SetDefault("simulation.jitter", 0.0005)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.demo_vehicles", 0)

	v.SetDefault("auth.delay", 1500*time.Millisecond)

	v.SetDefault("trip.history_limit", 100)
	v.SetDefault("trip.permission_timeout", 10*time.Second)
	v.SetDefault("trip.watch_timeout", 30*time.Second)
	v.SetDefault("trip.watch_maximum_age", 5*time.Second)

	v.SetDefault("map.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.attribution", `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`)
	v.SetDefault("map.center_latitude", 40.7580)
	v.SetDefault("map.center_longitude", -73.9855)
	v.SetDefault("map.zoom", 13)
	v.SetDefault("map.geo_index", "rtree")
	v.SetDefault("map.average_speed_kmh", 20.0)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("kafka.topic", "vehicle-locations")
}

// Load reads the configuration using v. When cfgFile is empty a config.yaml
// in the working directory is used if present; a missing default file is not
// an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
