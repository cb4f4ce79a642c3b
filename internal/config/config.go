// Package config provides configuration loading and management for quorum.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Backend types.
const (
	BackendGenAI    = "genai"
	BackendOpenAI   = "openai"
	BackendExec     = "exec"
	BackendScripted = "scripted"
)

// DirName is the default data directory name relative to the working directory.
const DirName = ".quorum"

// Config is the root configuration.
type Config struct {
	Backend   BackendConfig   `json:"backend"   mapstructure:"backend"`
	Run       RunDefaults     `json:"run"       mapstructure:"run"`
	Paths     Paths           `json:"paths"     mapstructure:"paths"`
	Server    ServerConfig    `json:"server"    mapstructure:"server"`
	Retention RetentionPolicy `json:"retention" mapstructure:"retention"`
}

// BackendConfig describes the generative backend.
type BackendConfig struct {
	Type      string        `json:"type"                  mapstructure:"type"`
	Model     string        `json:"model,omitempty"       mapstructure:"model"`
	BaseURL   string        `json:"base_url,omitempty"    mapstructure:"base_url"`
	APIKey    string        `json:"api_key,omitempty"     mapstructure:"api_key"`
	APIKeyEnv string        `json:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Timeout   time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"`
	Cmd       []string      `json:"cmd,omitempty"         mapstructure:"cmd"`
	UseTTY    bool          `json:"use_tty,omitempty"     mapstructure:"use_tty"`
	// Responses feeds the scripted backend, cycling in order.
	Responses []string `json:"responses,omitempty" mapstructure:"responses"`
}

// RunDefaults are applied to run inputs that leave a field unset.
type RunDefaults struct {
	NumSimulations       int  `json:"num_simulations"       mapstructure:"num_simulations"`
	MaxRounds            int  `json:"max_rounds"            mapstructure:"max_rounds"`
	TopCandidates        int  `json:"top_candidates"        mapstructure:"top_candidates"`
	CandidateConcurrency int  `json:"candidate_concurrency" mapstructure:"candidate_concurrency"`
	EvidenceTopK         int  `json:"evidence_top_k"        mapstructure:"evidence_top_k"`
	ContextItems         int  `json:"context_items"         mapstructure:"context_items"`
	EnableReflection     bool `json:"enable_reflection"     mapstructure:"enable_reflection"`
	EnablePlanning       bool `json:"enable_planning"       mapstructure:"enable_planning"`
}

// Paths locates on-disk state and assets.
type Paths struct {
	DataDir      string `json:"data_dir"                mapstructure:"data_dir"`
	AssetsDir    string `json:"assets_dir,omitempty"    mapstructure:"assets_dir"`
	ProfilesFile string `json:"profiles_file,omitempty" mapstructure:"profiles_file"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr             string        `json:"addr"              mapstructure:"addr"`
	SubscriberBuffer int           `json:"subscriber_buffer" mapstructure:"subscriber_buffer"`
	StatusCacheTTL   time.Duration `json:"status_cache_ttl"  mapstructure:"status_cache_ttl"`
}

// RetentionPolicy defines how many old runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend.type", BackendGenAI)
	v.SetDefault("backend.model", "gemini-2.5-flash")
	v.SetDefault("backend.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("backend.timeout", "120s")
	v.SetDefault("run.num_simulations", 3)
	v.SetDefault("run.max_rounds", 2)
	v.SetDefault("run.top_candidates", 3)
	v.SetDefault("run.candidate_concurrency", 1)
	v.SetDefault("run.evidence_top_k", 8)
	v.SetDefault("run.context_items", 6)
	v.SetDefault("run.enable_reflection", true)
	v.SetDefault("run.enable_planning", true)
	v.SetDefault("paths.data_dir", DirName)
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.subscriber_buffer", 256)
	v.SetDefault("server.status_cache_ttl", "30s")
	v.SetDefault("retention.keep_last", 50)
	v.SetDefault("retention.keep_days", 30)
}

// Load reads the config file at path into v, validates it and decodes it.
// A missing file is not an error: defaults apply.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	if err := v.BindEnv("backend.api_key", "QUORUM_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config: %w", err)
		}
	}

	if err := ValidateSettings(v.AllSettings()); err != nil {
		return Config{}, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c Config) Validate() error {
	switch c.Backend.Type {
	case BackendExec:
		if len(c.Backend.Cmd) == 0 {
			return fmt.Errorf("backend.cmd is required for exec backend")
		}
	case BackendScripted:
		if len(c.Backend.Responses) == 0 {
			return fmt.Errorf("backend.responses is required for scripted backend")
		}
	case BackendGenAI, BackendOpenAI:
		if strings.TrimSpace(c.Backend.Model) == "" {
			return fmt.Errorf("backend.model is required for %s backend", c.Backend.Type)
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	if c.Run.CandidateConcurrency <= 0 {
		return fmt.Errorf("run.candidate_concurrency must be > 0")
	}
	return nil
}

// ResolveAPIKey returns the literal key or the value of the configured environment variable.
func (b BackendConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(b.APIKey); key != "" {
		return key
	}
	if env := strings.TrimSpace(b.APIKeyEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}
