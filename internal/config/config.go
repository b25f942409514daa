package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	ReadLimit  int64  `mapstructure:"read_limit"`
	Secret     string `mapstructure:"secret"`
	Verbose    bool   `mapstructure:"verbose"`

	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	OSC       OSCConfig       `mapstructure:"osc"`
}

type UpstreamConfig struct {
	URL              string        `mapstructure:"url"`
	Model            string        `mapstructure:"model"`
	APIKey           string        `mapstructure:"api_key"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	InputSampleRate  int           `mapstructure:"input_sample_rate"`
	OutputSampleRate int           `mapstructure:"output_sample_rate"`
	SilenceDuration  time.Duration `mapstructure:"silence_duration"`
}

type RelayConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReceiveTimeout    time.Duration `mapstructure:"receive_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	VideoQueueSize    int           `mapstructure:"video_queue_size"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	ConnectLimit      int           `mapstructure:"connect_limit"`
	ConnectInterval   time.Duration `mapstructure:"connect_interval"`
}

type ReconnectConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Factor       float64       `mapstructure:"factor"`
}

type OSCConfig struct {
	SendHost   string `mapstructure:"send_host"`
	SendPort   int    `mapstructure:"send_port"`
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
	MaxLength  int    `mapstructure:"max_length"`
}

// EnvPrefix prefixes every environment override, e.g. TRANSLATE_OSC_SEND_PORT.
const EnvPrefix = "TRANSLATE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 19023)
	v.SetDefault("static_path", "./static")
	v.SetDefault("read_limit", 4<<20)
	v.SetDefault("secret", "")
	v.SetDefault("verbose", false)

	v.SetDefault("upstream.url", "wss://dashscope.aliyuncs.com/api-ws/v1/realtime")
	v.SetDefault("upstream.model", "qwen3-livetranslate-flash-realtime")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.write_timeout", "10s")
	v.SetDefault("upstream.connect_timeout", "15s")
	v.SetDefault("upstream.input_sample_rate", 16000)
	v.SetDefault("upstream.output_sample_rate", 24000)
	v.SetDefault("upstream.silence_duration", "3s")

	v.SetDefault("relay.heartbeat_interval", "25s")
	v.SetDefault("relay.receive_timeout", "60s")
	v.SetDefault("relay.write_timeout", "5s")
	v.SetDefault("relay.video_queue_size", 64)
	v.SetDefault("relay.send_queue_size", 256)
	v.SetDefault("relay.connect_limit", 10)
	v.SetDefault("relay.connect_interval", "1m")

	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.initial_delay", "1s")
	v.SetDefault("reconnect.max_delay", "30s")
	v.SetDefault("reconnect.factor", 2.0)

	v.SetDefault("osc.send_host", "127.0.0.1")
	v.SetDefault("osc.send_port", 9000)
	v.SetDefault("osc.listen_host", "127.0.0.1")
	v.SetDefault("osc.listen_port", 9001)
	v.SetDefault("osc.max_length", 144)
}

// Load reads config/config.<env>.yaml, then environment overrides, then the
// flags that were set explicitly. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("upstream.api_key", EnvPrefix+"_UPSTREAM_API_KEY", "DASHSCOPE_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind api key env: %w", err)
	}

	env := os.Getenv("CONFIG_ENV")
	if flags != nil {
		if f := flags.Lookup("config-env"); f != nil && f.Changed {
			env = f.Value.String()
		}
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Bool("api_key", cfg.Upstream.APIKey != "").
		Msg("config ready")
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range map[string]string{"port": "port", "verbose": "verbose"} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("config: reconnect.max_attempts must not be negative")
	}
	if c.Reconnect.Factor < 1 {
		return fmt.Errorf("config: reconnect.factor %.2f below 1", c.Reconnect.Factor)
	}
	if c.OSC.MaxLength <= 0 {
		return fmt.Errorf("config: osc.max_length must be positive")
	}
	return nil
}
