package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 环境变量前缀
const envPrefix = "BATTLESHIP_"

// Config 服务端配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Game     GameConfig     `yaml:"game"`
	Match    MatchConfig    `yaml:"match"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig TCP/WebSocket 服务器配置
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
	WSPort         int    `yaml:"ws_port"` // 0 表示不开启 WebSocket 网关
	Legacy         bool   `yaml:"legacy"`  // 输出无帧旧版文本
}

// Addr 返回 TCP 监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WSAddr 返回 WebSocket 网关监听地址
func (c *ServerConfig) WSAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.WSPort)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GameConfig 对局配置
type GameConfig struct {
	TurnTimeout     int `yaml:"turn_timeout"`      // 出手超时（秒）
	SetupTimeout    int `yaml:"setup_timeout"`     // 手动布舰每次输入超时（秒）
	ChoiceTimeout   int `yaml:"choice_timeout"`    // M/R 选择超时（秒）
	RematchTimeout  int `yaml:"rematch_timeout"`   // 再来一局每次询问超时（秒）
	RematchAttempts int `yaml:"rematch_attempts"`  // 再来一局最多询问次数
	ReconnectGrace  int `yaml:"reconnect_grace"`   // 断线重连宽限（秒）
	ReconnectPollMS int `yaml:"reconnect_poll_ms"` // 宽限期内探测对手间隔（毫秒）
}

// TurnTimeoutDuration 返回出手超时时长
func (c *GameConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// SetupTimeoutDuration 返回布舰输入超时时长
func (c *GameConfig) SetupTimeoutDuration() time.Duration {
	return time.Duration(c.SetupTimeout) * time.Second
}

// ChoiceTimeoutDuration 返回布舰方式选择超时时长
func (c *GameConfig) ChoiceTimeoutDuration() time.Duration {
	return time.Duration(c.ChoiceTimeout) * time.Second
}

// RematchTimeoutDuration 返回再来一局询问超时时长
func (c *GameConfig) RematchTimeoutDuration() time.Duration {
	return time.Duration(c.RematchTimeout) * time.Second
}

// ReconnectGraceDuration 返回断线宽限时长
func (c *GameConfig) ReconnectGraceDuration() time.Duration {
	return time.Duration(c.ReconnectGrace) * time.Second
}

// ReconnectPollInterval 返回宽限期探测间隔
func (c *GameConfig) ReconnectPollInterval() time.Duration {
	return time.Duration(c.ReconnectPollMS) * time.Millisecond
}

// MatchConfig 匹配与调度配置
type MatchConfig struct {
	MaxConcurrent       int `yaml:"max_concurrent"`        // 同时进行的对局数
	ScheduleIntervalMS  int `yaml:"schedule_interval_ms"`  // 调度器轮询间隔（毫秒）
	QueueNotifyInterval int `yaml:"queue_notify_interval"` // 排队位置通知间隔（秒）
	IdentifyTimeout     int `yaml:"identify_timeout"`      // 首行身份上报超时（秒）
	PromotionTimeout    int `yaml:"promotion_timeout"`     // 观众晋升应答超时（秒）
	SessionTTL          int `yaml:"session_ttl"`           // 断线会话保留时长（分钟）
}

// ScheduleInterval 返回调度间隔
func (c *MatchConfig) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalMS) * time.Millisecond
}

// QueueNotifyDuration 返回排队通知间隔
func (c *MatchConfig) QueueNotifyDuration() time.Duration {
	return time.Duration(c.QueueNotifyInterval) * time.Second
}

// IdentifyTimeoutDuration 返回身份上报超时
func (c *MatchConfig) IdentifyTimeoutDuration() time.Duration {
	return time.Duration(c.IdentifyTimeout) * time.Second
}

// PromotionTimeoutDuration 返回晋升应答超时
func (c *MatchConfig) PromotionTimeoutDuration() time.Duration {
	return time.Duration(c.PromotionTimeout) * time.Second
}

// SessionTTLDuration 返回会话保留时长
func (c *MatchConfig) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Minute
}

// SecurityConfig 连接安全配置
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig 连接速率限制
type RateLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
	MaxPerMinute int `yaml:"max_per_minute"`
	BanDuration  int `yaml:"ban_duration"` // 封禁时长（秒）
}

// BanDurationTime 返回封禁时长
func (c *RateLimitConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault 配置文件不存在时回退到默认配置
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults 设置默认值
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = 256
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Game.TurnTimeout == 0 {
		c.Game.TurnTimeout = 30
	}
	if c.Game.SetupTimeout == 0 {
		c.Game.SetupTimeout = 30
	}
	if c.Game.ChoiceTimeout == 0 {
		c.Game.ChoiceTimeout = 15
	}
	if c.Game.RematchTimeout == 0 {
		c.Game.RematchTimeout = 30
	}
	if c.Game.RematchAttempts == 0 {
		c.Game.RematchAttempts = 3
	}
	if c.Game.ReconnectGrace == 0 {
		c.Game.ReconnectGrace = 60
	}
	if c.Game.ReconnectPollMS == 0 {
		c.Game.ReconnectPollMS = 500
	}

	if c.Match.MaxConcurrent == 0 {
		c.Match.MaxConcurrent = 1
	}
	if c.Match.ScheduleIntervalMS == 0 {
		c.Match.ScheduleIntervalMS = 200
	}
	if c.Match.QueueNotifyInterval == 0 {
		c.Match.QueueNotifyInterval = 10
	}
	if c.Match.IdentifyTimeout == 0 {
		c.Match.IdentifyTimeout = 10
	}
	if c.Match.PromotionTimeout == 0 {
		c.Match.PromotionTimeout = 10
	}
	if c.Match.SessionTTL == 0 {
		c.Match.SessionTTL = 10
	}

	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = []string{"*"}
	}
	if c.Security.RateLimit.MaxPerSecond == 0 {
		c.Security.RateLimit.MaxPerSecond = 5
	}
	if c.Security.RateLimit.MaxPerMinute == 0 {
		c.Security.RateLimit.MaxPerMinute = 60
	}
	if c.Security.RateLimit.BanDuration == 0 {
		c.Security.RateLimit.BanDuration = 60
	}
}

// LoadEnv 读取 .env 文件（可选）并用 BATTLESHIP_* 环境变量覆盖配置
func (c *Config) LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	if v := os.Getenv(envPrefix + "HOST"); v != "" {
		c.Server.Host = v
	}
	if err := envInt("PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := envInt("WS_PORT", &c.Server.WSPort); err != nil {
		return err
	}
	if err := envInt("MAX_MATCHES", &c.Match.MaxConcurrent); err != nil {
		return err
	}
	if err := envBool("LEGACY", &c.Server.Legacy); err != nil {
		return err
	}
	if err := envBool("REDIS_ENABLED", &c.Redis.Enabled); err != nil {
		return err
	}
	if v := os.Getenv(envPrefix + "REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(envPrefix + "REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}

// Validate 检查配置是否自洽
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Match.MaxConcurrent < 1 {
		return fmt.Errorf("match.max_concurrent must be >= 1, got %d", c.Match.MaxConcurrent)
	}
	if c.Match.SessionTTLDuration() <= c.Game.ReconnectGraceDuration() {
		return fmt.Errorf("match.session_ttl (%v) must exceed game.reconnect_grace (%v)",
			c.Match.SessionTTLDuration(), c.Game.ReconnectGraceDuration())
	}
	return nil
}
