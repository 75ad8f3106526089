package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the portfolio service
type Config struct {
	Server  Server  `yaml:"server"`
	Store   Store   `yaml:"store"`
	Loader  Loader  `yaml:"loader"`
	Probe   Probe   `yaml:"probe"`
	AltText AltText `yaml:"alttext"`
}

type Server struct {
	Port           string `yaml:"port"`
	StaticDir      string `yaml:"static_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type Store struct {
	Dir string `yaml:"dir"`
	Key string `yaml:"key"`
}

type Loader struct {
	RootMargin float64  `yaml:"root_margin"`
	Threshold  float64  `yaml:"threshold"`
	LocalHosts []string `yaml:"local_hosts"`
}

type Probe struct {
	MongoURI  string        `yaml:"mongo_uri"`
	HealthURL string        `yaml:"health_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type AltText struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: Server{
			Port:           "8888",
			StaticDir:      "static",
			MaxUploadBytes: 10 * 1024 * 1024,
		},
		Store: Store{
			Dir: "data",
			Key: "portfolio-images",
		},
		Loader: Loader{
			RootMargin: 50,
			Threshold:  0.01,
			LocalHosts: []string{"localhost", "127.0.0.1"},
		},
		Probe: Probe{
			HealthURL: "http://localhost:8888/healthcheck",
			Timeout:   5 * time.Second,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"PORTFOLIO_PORT":       &cfg.Server.Port,
		"PORTFOLIO_STATIC_DIR": &cfg.Server.StaticDir,
		"PORTFOLIO_STORE_DIR":  &cfg.Store.Dir,
		"MONGODB_URI":          &cfg.Probe.MongoURI,
		"HEALTH_URL":           &cfg.Probe.HealthURL,
		"ALTTEXT_PROVIDER":     &cfg.AltText.Provider,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
}

// Validate rejects values the loader and server cannot work with
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Store.Key == "" {
		errs = append(errs, errors.New("store.key is required"))
	}
	if c.Loader.RootMargin < 0 {
		errs = append(errs, errors.New("loader.root_margin must not be negative"))
	}
	if c.Loader.Threshold <= 0 || c.Loader.Threshold > 1 {
		errs = append(errs, fmt.Errorf("loader.threshold must be in (0,1], got %v", c.Loader.Threshold))
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, errors.New("probe.timeout must be positive"))
	}
	return errors.Join(errs...)
}
