// Package config loads process configuration from the environment.
//
// Everything that used to be reasonable as an ambient global — the signing
// secret, the email provider key — comes in here once at startup and is
// passed explicitly into constructors. No package reads os.Getenv after
// Load returns.
package config

import (
	"errors"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds everything the server needs from the environment.
//
// cleanenv reads each field from the named env var, applying the default
// when the variable is unset. JWT_SECRET has no default on purpose: a
// well-known fallback secret would make every deployment's tokens forgeable.
type Config struct {
	Port        int    `env:"PORT" env-default:"8080"`
	DBPath      string `env:"DB_PATH" env-default:"data/taskmanager.db"`
	JWTSecret   string `env:"JWT_SECRET"`
	SendGridKey string `env:"SENDGRID_API_KEY"`
	MailFrom    string `env:"MAIL_FROM" env-default:"no-reply@localhost"`
	MailName    string `env:"MAIL_FROM_NAME" env-default:"Task Manager"`
}

// Load reads a .env file if one exists, then populates Config from the
// environment. SENDGRID_API_KEY may be empty (email gets disabled);
// JWT_SECRET may not.
func Load() (Config, error) {
	// .env is a development convenience — absence is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: reading environment: %w", err)
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: JWT_SECRET must be set")
	}

	return cfg, nil
}
