package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	TempTTL    time.Duration `yaml:"temp_ttl"`
}

type WebAuthnConfig struct {
	RPID          string   `yaml:"rp_id"`
	RPDisplayName string   `yaml:"rp_display_name"`
	RPOrigins     []string `yaml:"rp_origins"`
}

type LockoutConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	LockDuration time.Duration `yaml:"lock_duration"`
	IdleEviction time.Duration `yaml:"idle_eviction"`
}

// BreakGlassConfig is the operator escape hatch. Disabled unless explicitly
// enabled in config; every use is written to the activity log.
type BreakGlassConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

type SecurityConfig struct {
	Lockout    LockoutConfig    `yaml:"lockout"`
	BreakGlass BreakGlassConfig `yaml:"break_glass"`
}

type Config struct {
	Server struct {
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
	} `yaml:"email"`
	JWT      JWTConfig      `yaml:"jwt"`
	WebAuthn WebAuthnConfig `yaml:"webauthn"`
	Security SecurityConfig `yaml:"security"`
}

func LoadConfig() *Config {
	return LoadConfigFrom("config/config.yaml")
}

func LoadConfigFrom(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		panic("Failed to open " + path + ": " + err.Error())
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		panic("Failed to parse " + path + ": " + err.Error())
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.JWT.SessionTTL == 0 {
		c.JWT.SessionTTL = 7 * 24 * time.Hour
	}
	if c.JWT.TempTTL == 0 {
		c.JWT.TempTTL = 5 * time.Minute
	}
	if c.Security.Lockout.MaxAttempts == 0 {
		c.Security.Lockout.MaxAttempts = 5
	}
	if c.Security.Lockout.LockDuration == 0 {
		c.Security.Lockout.LockDuration = 15 * time.Minute
	}
	if c.Security.Lockout.IdleEviction == 0 {
		c.Security.Lockout.IdleEviction = 60 * time.Minute
	}
	if c.WebAuthn.RPDisplayName == "" {
		c.WebAuthn.RPDisplayName = "CertiChain"
	}
}
