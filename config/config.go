package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"TowerMerge/internal/utils"
)

type Config struct {
	Server struct {
		Port string
	}
	Database struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	JWT struct {
		Secret string
		// ServiceSecret 签发内部服务 token（结束对局等），必须与 Secret 不同
		ServiceSecret string `mapstructure:"service_secret"`
	}
	Nats struct {
		URL string
	}
	Catalog struct {
		Source string // file | postgres
		Path   string
	}
	Game GameConfig
	Log  struct {
		Level string
	}
}

type GameConfig struct {
	HandSize       int      `mapstructure:"hand_size"`
	StartingGold   int      `mapstructure:"starting_gold"`
	RoundIncome    int      `mapstructure:"round_income"`
	TowerBaseCost  int      `mapstructure:"tower_base_cost"`
	TowerCostFloor int      `mapstructure:"tower_cost_floor"`
	StartingDeck   []string `mapstructure:"starting_deck"`
	RoomTTLSeconds int      `mapstructure:"room_ttl_seconds"`
	// RoomSweepSeconds 续期运行中房间、回收已过期房间的周期
	RoomSweepSeconds int `mapstructure:"room_sweep_seconds"`
}

var C Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("catalog.source", "file")
	v.SetDefault("catalog.path", "config/cards.yaml")
	v.SetDefault("game.hand_size", 5)
	v.SetDefault("game.starting_gold", 10)
	v.SetDefault("game.round_income", 5)
	v.SetDefault("game.tower_base_cost", 10)
	v.SetDefault("game.tower_cost_floor", 3)
	v.SetDefault("game.room_ttl_seconds", 3600)
	v.SetDefault("game.room_sweep_seconds", 30)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.service_secret", "")
	v.SetDefault("log.level", "info")
}

// LoadFrom reads the YAML file at path (missing file is fine, defaults apply) with TM_* env overrides,
// e.g. TM_REDIS_ADDR.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	g := c.Game
	if g.HandSize <= 0 {
		return fmt.Errorf("config: game.hand_size must be positive, got %d", g.HandSize)
	}
	if g.TowerCostFloor < 0 || g.TowerBaseCost < g.TowerCostFloor {
		return fmt.Errorf("config: tower cost floor %d must be within [0, %d]", g.TowerCostFloor, g.TowerBaseCost)
	}
	if g.RoomSweepSeconds <= 0 || g.RoomSweepSeconds >= g.RoomTTLSeconds {
		return fmt.Errorf("config: game.room_sweep_seconds must be in (0, %d), got %d", g.RoomTTLSeconds, g.RoomSweepSeconds)
	}
	if c.JWT.ServiceSecret != "" && c.JWT.ServiceSecret == c.JWT.Secret {
		return errors.New("config: jwt.service_secret must differ from jwt.secret")
	}
	switch c.Catalog.Source {
	case "file", "postgres":
	default:
		return fmt.Errorf("config: catalog.source must be file or postgres, got %q", c.Catalog.Source)
	}
	return nil
}

// Load 读取 .env 与 config/config.yaml 到全局 C，失败直接退出
func Load() {
	_ = godotenv.Load()
	c, err := LoadFrom("config/config.yaml")
	if err != nil {
		utils.Log.Fatal("Failed to load config", "err", err)
	}
	C = c
}
