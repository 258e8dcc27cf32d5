package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the YAML config looked up in the workspace.
	FileName = "taskarch.yml"
	// TOMLFileName is used when no YAML config exists.
	TOMLFileName = "taskarch.toml"
)

// Config models taskarch.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Generator GeneratorConfig `yaml:"generator" toml:"generator"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Webhooks  []WebhookConfig `yaml:"webhooks" toml:"webhooks" validate:"dive"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr" toml:"addr" validate:"required,hostname_port"`
	BasePath    string   `yaml:"base_path" toml:"base_path"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

type GeneratorConfig struct {
	Provider string        `yaml:"provider" toml:"provider" validate:"required,oneof=simulated openai anthropic gemini ollama"`
	Model    string        `yaml:"model" toml:"model"`
	APIKey   string        `yaml:"api_key" toml:"api_key"`
	BaseURL  string        `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	Latency  time.Duration `yaml:"latency" toml:"latency" validate:"gte=0"`
	Timeout  time.Duration `yaml:"timeout" toml:"timeout" validate:"gte=0"`
	MaxTasks int           `yaml:"max_tasks" toml:"max_tasks" validate:"gte=1,lte=50"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=text json"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" toml:"url" validate:"required,url"`
	Events         []string `yaml:"events" toml:"events"`
	Secret         string   `yaml:"secret" toml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds" validate:"gte=0"`
	Enabled        *bool    `yaml:"enabled" toml:"enabled"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads the workspace config, falling back to defaults when no file exists.
func Load(fs afero.Fs, workspace string) (*Config, error) {
	for _, candidate := range []struct {
		path  string
		parse func([]byte) (*Config, error)
	}{
		{Path(workspace), FromYAML},
		{TOMLPath(workspace), FromTOML},
	} {
		data, err := afero.ReadFile(fs, candidate.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		cfg, err := candidate.parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", candidate.path, err)
		}
		return cfg, nil
	}
	return Default(), nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			field := e.Namespace()
			if i := strings.Index(field, "."); i >= 0 {
				field = field[i+1:]
			}
			if e.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("config.%s must satisfy %s=%s", field, e.Tag(), e.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("config.%s must satisfy %s", field, e.Tag()))
			}
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for i, hook := range c.Webhooks {
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// Path returns the YAML config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// TOMLPath returns the TOML config file path for a workspace.
func TOMLPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, TOMLFileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	cfg.applyDefaults(true)
	return &cfg
}

// applyDefaults fills unset fields. latencySet reports whether the source
// named generator.latency, so an explicit zero turns the simulated delay off.
func (c *Config) applyDefaults(latencySet bool) {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8000"
	}
	if c.Server.BasePath == "/" {
		c.Server.BasePath = ""
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	if c.Server.CORSOrigins == nil {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Generator.Provider == "" {
		c.Generator.Provider = "simulated"
	}
	if !latencySet && c.Generator.Latency == 0 && c.Generator.Provider == "simulated" {
		c.Generator.Latency = 1500 * time.Millisecond
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = 60 * time.Second
	}
	if c.Generator.MaxTasks == 0 {
		c.Generator.MaxTasks = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults(yamlDefines(data, "generator", "latency"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func yamlDefines(data []byte, section, key string) bool {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	sec, ok := raw[section].(map[string]any)
	if !ok {
		return false
	}
	_, ok = sec[key]
	return ok
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	cfg.applyDefaults(meta.IsDefined("generator", "latency"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads config from the given path, choosing the format by extension.
func FromFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8000
  base_path: ""
  cors_origins: ["*"]

auth:
  # Set (or export TASKARCH_JWT_SECRET) to require bearer tokens.
  jwt_secret: ""

generator:
  # simulated | openai | anthropic | gemini | ollama
  provider: simulated
  model: ""
  api_key: ""
  base_url: ""
  latency: 1.5s
  timeout: 60s
  max_tasks: 10

log:
  level: info
  format: text

webhooks: []
`
