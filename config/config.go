package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Minio     MinioConfig     `yaml:"minio"`
	Auth      AuthConfig      `yaml:"auth"`
	Render    RenderConfig    `yaml:"render"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Signature SignatureConfig `yaml:"signature"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type RenderConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// TiersConfig holds the per-tier monthly document quotas. -1 means unlimited.
// Pointers distinguish "not set" from an explicit zero quota.
type TiersConfig struct {
	FreeLimit         *int `yaml:"free_limit"`
	StarterLimit      *int `yaml:"starter_limit"`
	ProfessionalLimit *int `yaml:"professional_limit"`
	EnterpriseLimit   *int `yaml:"enterprise_limit"`
}

type SignatureConfig struct {
	ProviderURL string `yaml:"provider_url"`
	Seed        string `yaml:"seed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	GlobalConfig = &cfg
	return &cfg, nil
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Render.Workers == 0 {
		c.Render.Workers = 4
	}
	if c.Render.QueueSize == 0 {
		c.Render.QueueSize = 64
	}
	if c.Render.TimeoutSeconds == 0 {
		c.Render.TimeoutSeconds = 120
	}
	if c.Tiers.FreeLimit == nil {
		c.Tiers.FreeLimit = intPtr(3)
	}
	if c.Tiers.StarterLimit == nil {
		c.Tiers.StarterLimit = intPtr(25)
	}
	if c.Tiers.ProfessionalLimit == nil {
		c.Tiers.ProfessionalLimit = intPtr(100)
	}
	if c.Tiers.EnterpriseLimit == nil {
		c.Tiers.EnterpriseLimit = intPtr(-1)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func intPtr(v int) *int {
	return &v
}
