// Package config loads scenesync settings: built-in defaults, then a YAML
// file, then SCENESYNC_* environment variables (a .env file in the working
// directory is read first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SCENESYNC_"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Client   ClientConfig   `yaml:"client"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// Advertise is the base URL published to the registry. Defaults to
	// http://<listen>.
	Advertise  string `yaml:"advertise"`
	Prefix     string `yaml:"prefix"`
	CORSOrigin string `yaml:"cors_origin"`
}

type RegistryConfig struct {
	// Backend is one of "http", "valkey" or "memory".
	Backend    string `yaml:"backend"`
	NameServer string `yaml:"name_server"`
	ValkeyAddr string `yaml:"valkey_addr"`
	ValkeyKey  string `yaml:"valkey_key"`
}

type ClientConfig struct {
	URI             string        `yaml:"uri"`
	Prefix          string        `yaml:"prefix"`
	Debug           bool          `yaml:"debug"`
	UpdateFrequency int           `yaml:"update_frequency"`
	MaxFailures     int           `yaml:"max_failures"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	FrameInterval   time.Duration `yaml:"frame_interval"`
	// Push follows the server's websocket feed instead of polling.
	Push       bool   `yaml:"push"`
	ScriptPath string `yaml:"script_path"`
	WorkDir    string `yaml:"work_dir"`
}

type AuthConfig struct {
	// Secret enables bearer-token checks on the server.
	Secret string `yaml:"secret"`
	// Token is sent by clients.
	Token string `yaml:"token"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:9090",
			Prefix: "scenesync.server",
		},
		Registry: RegistryConfig{
			Backend:    "http",
			NameServer: "http://127.0.0.1:9090",
		},
		Client: ClientConfig{
			Prefix:          "scenesync.server",
			UpdateFrequency: 10,
			MaxFailures:     5,
			CallTimeout:     2 * time.Second,
			FrameInterval:   100 * time.Millisecond,
			ScriptPath:      "scene.cxc",
			WorkDir:         "scenesync-work",
		},
	}
}

// Load reads path (optional) over the defaults and applies the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if err := loadDotenv(".env"); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func loadDotenv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	str("LISTEN", &c.Server.Listen)
	str("ADVERTISE", &c.Server.Advertise)
	str("SERVER_PREFIX", &c.Server.Prefix)
	str("CORS_ORIGIN", &c.Server.CORSOrigin)
	str("REGISTRY", &c.Registry.Backend)
	str("NAME_SERVER", &c.Registry.NameServer)
	str("VALKEY_ADDR", &c.Registry.ValkeyAddr)
	str("VALKEY_KEY", &c.Registry.ValkeyKey)
	str("URI", &c.Client.URI)
	str("PREFIX", &c.Client.Prefix)
	str("SCRIPT", &c.Client.ScriptPath)
	str("WORK_DIR", &c.Client.WorkDir)
	str("AUTH_SECRET", &c.Auth.Secret)
	str("TOKEN", &c.Auth.Token)

	if v := getenv(envPrefix + "DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		c.Client.Debug = b
	}
	if v := getenv(envPrefix + "UPDATE_FREQUENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sUPDATE_FREQUENCY: %w", envPrefix, err)
		}
		c.Client.UpdateFrequency = n
	}
	if v := getenv(envPrefix + "CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCALL_TIMEOUT: %w", envPrefix, err)
		}
		c.Client.CallTimeout = d
	}
	return nil
}

// Normalize fills derived fields.
func (c *Config) Normalize() {
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if c.Registry.Backend == "" {
		c.Registry.Backend = "http"
	}
	if c.Server.Advertise == "" {
		c.Server.Advertise = "http://" + c.Server.Listen
	}
	c.Server.Advertise = strings.TrimRight(c.Server.Advertise, "/")
	c.Registry.NameServer = strings.TrimRight(c.Registry.NameServer, "/")
	if c.Client.UpdateFrequency <= 0 {
		c.Client.UpdateFrequency = 1
	}
}

func (c Config) Validate() error {
	switch c.Registry.Backend {
	case "http":
		if c.Registry.NameServer == "" {
			return errors.New("registry.name_server is required for the http backend")
		}
	case "valkey":
		if c.Registry.ValkeyAddr == "" {
			return errors.New("registry.valkey_addr is required for the valkey backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.Client.MaxFailures <= 0 {
		return errors.New("client.max_failures must be positive")
	}
	if c.Client.CallTimeout <= 0 {
		return errors.New("client.call_timeout must be positive")
	}
	return nil
}
