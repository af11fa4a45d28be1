package authcore

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// duration wraps time.Duration so YAML accepts the usual "15m" notation.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig is the YAML shape accepted by LoadConfigFile. Only the fields an
// operator reasonably tunes are exposed; everything else keeps its default.
type fileConfig struct {
	Token struct {
		Issuer     string   `yaml:"issuer"`
		SessionTTL duration `yaml:"session_ttl"`
	} `yaml:"token"`
	RateLimit struct {
		MaxAttempts   int      `yaml:"max_attempts"`
		Window        duration `yaml:"window"`
		BlockDuration duration `yaml:"block_duration"`
	} `yaml:"rate_limit"`
	PasswordPolicy struct {
		MinLength        int  `yaml:"min_length"`
		RequireUppercase bool `yaml:"require_uppercase"`
		RequireLowercase bool `yaml:"require_lowercase"`
		RequireDigit     bool `yaml:"require_digit"`
		RequireSymbol    bool `yaml:"require_symbol"`
	} `yaml:"password_policy"`
	EmailVerification struct {
		TokenTTL duration `yaml:"token_ttl"`
	} `yaml:"email_verification"`
	PasswordReset struct {
		TokenTTL duration `yaml:"token_ttl"`
	} `yaml:"password_reset"`
	Store struct {
		OpTimeout duration `yaml:"op_timeout"`
		KeyPrefix string   `yaml:"key_prefix"`
	} `yaml:"store"`
	Security struct {
		ProductionMode bool `yaml:"production_mode"`
	} `yaml:"security"`
}

// LoadConfigFile overlays a YAML file onto the defaults. The signing secret
// never lives in the file; it comes from the environment (LoadConfigEnv).
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if fc.Token.Issuer != "" {
		cfg.Token.Issuer = fc.Token.Issuer
	}
	if fc.Token.SessionTTL > 0 {
		cfg.Token.SessionTTL = time.Duration(fc.Token.SessionTTL)
	}
	if fc.RateLimit.MaxAttempts > 0 {
		cfg.RateLimit.MaxAttempts = fc.RateLimit.MaxAttempts
	}
	if fc.RateLimit.Window > 0 {
		cfg.RateLimit.Window = time.Duration(fc.RateLimit.Window)
	}
	if fc.RateLimit.BlockDuration > 0 {
		cfg.RateLimit.BlockDuration = time.Duration(fc.RateLimit.BlockDuration)
	}
	if fc.PasswordPolicy.MinLength > 0 {
		cfg.PasswordPolicy = PasswordPolicyConfig{
			MinLength:        fc.PasswordPolicy.MinLength,
			RequireUppercase: fc.PasswordPolicy.RequireUppercase,
			RequireLowercase: fc.PasswordPolicy.RequireLowercase,
			RequireDigit:     fc.PasswordPolicy.RequireDigit,
			RequireSymbol:    fc.PasswordPolicy.RequireSymbol,
		}
	}
	if fc.EmailVerification.TokenTTL > 0 {
		cfg.EmailVerification.TokenTTL = time.Duration(fc.EmailVerification.TokenTTL)
	}
	if fc.PasswordReset.TokenTTL > 0 {
		cfg.PasswordReset.TokenTTL = time.Duration(fc.PasswordReset.TokenTTL)
	}
	if fc.Store.OpTimeout > 0 {
		cfg.Store.OpTimeout = time.Duration(fc.Store.OpTimeout)
	}
	if fc.Store.KeyPrefix != "" {
		cfg.Store.KeyPrefix = fc.Store.KeyPrefix
	}
	cfg.Security.ProductionMode = fc.Security.ProductionMode

	return cfg, nil
}

// LoadConfigEnv overlays environment variables onto cfg. A .env file in the
// working directory is loaded first when present. Recognized variables:
//
//	AUTHCORE_TOKEN_SECRET      signing secret (required to build)
//	AUTHCORE_TOKEN_ISSUER      issuer claim
//	AUTHCORE_SESSION_TTL       e.g. 168h
//	AUTHCORE_MAX_ATTEMPTS      limiter budget
//	AUTHCORE_PRODUCTION        "true" enables production mode
func LoadConfigEnv(cfg Config) Config {
	_ = godotenv.Load()

	if v := os.Getenv("AUTHCORE_TOKEN_SECRET"); v != "" {
		cfg.Token.Secret = []byte(v)
	}
	if v := os.Getenv("AUTHCORE_TOKEN_ISSUER"); v != "" {
		cfg.Token.Issuer = v
	}
	if v := os.Getenv("AUTHCORE_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Token.SessionTTL = d
		}
	}
	if v := os.Getenv("AUTHCORE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.MaxAttempts = n
		}
	}
	if v := os.Getenv("AUTHCORE_PRODUCTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.ProductionMode = b
		}
	}

	return cfg
}
