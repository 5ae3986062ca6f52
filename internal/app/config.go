package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"peerchat/internal/crypto"
	"peerchat/internal/services/identity"
	"peerchat/internal/services/session"
)

const (
	configName = "peerchat"
	envPrefix  = "PEERCHAT"
)

// Config holds runtime options for building the app.
type Config struct {
	Name             string        `mapstructure:"name"`
	Port             int           `mapstructure:"port"`
	DownloadDir      string        `mapstructure:"download_dir"`
	Cipher           string        `mapstructure:"cipher"`
	MaxFileSize      int64         `mapstructure:"max_file_size"`
	MaxTextSize      int64         `mapstructure:"max_text_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	KeepAlive        time.Duration `mapstructure:"keepalive"`
	LogLevel         string        `mapstructure:"log_level"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	IPEndpoint       string        `mapstructure:"ip_endpoint"`
}

// NewViper returns a viper instance with defaults, environment binding and
// the config search path set. Flags are bound separately with BindFlags.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.peerchat")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "")
	v.SetDefault("port", session.DefaultPort)
	v.SetDefault("download_dir", "downloads")
	v.SetDefault("cipher", string(crypto.SuiteCBC))
	v.SetDefault("max_file_size", session.DefaultMaxFileSize)
	v.SetDefault("max_text_size", session.DefaultMaxTextSize)
	v.SetDefault("handshake_timeout", session.DefaultHandshakeTimeout.String())
	v.SetDefault("dial_timeout", session.DefaultDialTimeout.String())
	v.SetDefault("keepalive", session.DefaultKeepAlive.String())
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("ip_endpoint", "")
}

// RegisterFlags declares the persistent flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to config file (default ./peerchat.yaml or $HOME/.peerchat/peerchat.yaml)")
	fs.String("name", "", "display name shown to the peer (default $USER)")
	fs.IntP("port", "p", session.DefaultPort, "TCP port to listen on or dial")
	fs.String("download-dir", "downloads", "directory for received files")
	fs.String("cipher", string(crypto.SuiteCBC), "payload cipher: aes-256-cbc or xchacha20-poly1305 (both peers must match)")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9100")
}

// BindFlags makes flags in fs take precedence over env and file values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"name":         "name",
		"port":         "port",
		"download_dir": "download-dir",
		"cipher":       "cipher",
		"log_level":    "log-level",
		"metrics_addr": "metrics-addr",
	} {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
	}
	return nil
}

// Load reads the config file if present and decodes v into a Config.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = identity.DefaultDisplayName()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if err := identity.ValidateDisplayName(c.Name); err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if _, err := crypto.ParseSuite(c.Cipher); err != nil {
		return err
	}
	if c.MaxFileSize <= 0 || c.MaxTextSize <= 0 {
		return errors.New("size limits must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SessionOptions maps the config onto session options for token.
func (c Config) SessionOptions(token string) session.Options {
	return session.Options{
		LocalName:        c.Name,
		Token:            token,
		Suite:            crypto.Suite(c.Cipher),
		MaxFileSize:      c.MaxFileSize,
		MaxTextSize:      c.MaxTextSize,
		HandshakeTimeout: c.HandshakeTimeout,
		DialTimeout:      c.DialTimeout,
		KeepAlive:        c.KeepAlive,
	}
}
