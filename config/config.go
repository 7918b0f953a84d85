package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tankarena/server"
)

// EnvPrefix 环境变量前缀，如 TANKARENA_ROOM_STALEAFTER=30s
const EnvPrefix = "TANKARENA"

// Config 进程级配置
type Config struct {
	Addr   string     `mapstructure:"addr"`
	Static StaticConf `mapstructure:"static"`
	Room   RoomConf   `mapstructure:"room"`
	Log    LogConf    `mapstructure:"log"`
}

type StaticConf struct {
	Dir string `mapstructure:"dir"`
}

type RoomConf struct {
	Default         string        `mapstructure:"default"`
	TickInterval    time.Duration `mapstructure:"tickInterval"`
	StaleAfter      time.Duration `mapstructure:"staleAfter"`
	BulletBufferTTL time.Duration `mapstructure:"bulletBufferTTL"`
	BulletReplayAge time.Duration `mapstructure:"bulletReplayAge"`
	PongInterval    time.Duration `mapstructure:"pongInterval"`
	SendQueue       int           `mapstructure:"sendQueue"`
}

type LogConf struct {
	File    string `mapstructure:"file"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	def := server.DefaultRoomConfig()
	v.SetDefault("addr", ":8080")
	v.SetDefault("static.dir", "")
	v.SetDefault("room.default", "arena")
	v.SetDefault("room.tickInterval", def.TickInterval)
	v.SetDefault("room.staleAfter", def.StaleAfter)
	v.SetDefault("room.bulletBufferTTL", def.BulletBufferTTL)
	v.SetDefault("room.bulletReplayAge", def.BulletReplayAge)
	v.SetDefault("room.pongInterval", def.PongInterval)
	v.SetDefault("room.sendQueue", 256)
	v.SetDefault("log.file", "tankarena.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
}

// Load 依次合并：默认值 < 配置文件 < .env/环境变量 < 命令行参数
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("tankarena", pflag.ContinueOnError)
	configFile := flags.String("config", "", "config file (yaml/json/toml); defaults to ./tankarena.yaml if present")
	flags.String("addr", ":8080", "server listen address, e.g. :8080")
	flags.String("static", "", "directory served at /")
	flags.String("room", "arena", "default room name")
	flags.Duration("tick", 100*time.Millisecond, "snapshot broadcast interval")
	flags.Duration("stale-after", 15*time.Second, "drop players with no update for this long")
	flags.String("log-file", "tankarena.log", "rolling log file; empty disables")
	flags.String("log-level", "info", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	bindings := map[string]string{
		"addr":              "addr",
		"static.dir":        "static",
		"room.default":      "room",
		"room.tickInterval": "tick",
		"room.staleAfter":   "stale-after",
		"log.file":          "log-file",
		"log.level":         "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("tankarena")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查时间参数均为正
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"room.tickInterval":    c.Room.TickInterval,
		"room.staleAfter":      c.Room.StaleAfter,
		"room.bulletBufferTTL": c.Room.BulletBufferTTL,
		"room.bulletReplayAge": c.Room.BulletReplayAge,
		"room.pongInterval":    c.Room.PongInterval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", key, d)
		}
	}
	if c.Room.BulletReplayAge > c.Room.BulletBufferTTL {
		return fmt.Errorf("config: room.bulletReplayAge (%s) exceeds room.bulletBufferTTL (%s)",
			c.Room.BulletReplayAge, c.Room.BulletBufferTTL)
	}
	return nil
}

// ServerOptions 转换为服务端参数
func (c *Config) ServerOptions() server.Options {
	return server.Options{
		Room: server.RoomConfig{
			TickInterval:    c.Room.TickInterval,
			StaleAfter:      c.Room.StaleAfter,
			BulletBufferTTL: c.Room.BulletBufferTTL,
			BulletReplayAge: c.Room.BulletReplayAge,
			PongInterval:    c.Room.PongInterval,
		},
		DefaultRoom: c.Room.Default,
		SendQueue:   c.Room.SendQueue,
		StaticDir:   c.Static.Dir,
	}
}

// LogOptions 转换为日志参数
func (c *Config) LogOptions() server.LogOptions {
	return server.LogOptions{File: c.Log.File, Level: c.Log.Level, Console: c.Log.Console}
}
