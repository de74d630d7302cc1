package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Secrets are read from the environment and override the file.
type Secrets struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	StorageDSN    string `envconfig:"STORAGE_DSN"`
}

const envPrefix = "CARDBOT"

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment.
// Missing files are ignored; existing variables are not overwritten.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays CARDBOT_* secrets onto cfg.
func ApplyEnv(cfg *Config) error {
	var s Secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return err
	}
	if v := strings.TrimSpace(s.TelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(s.StorageDSN); v != "" {
		cfg.Storage.DSN = v
	}
	return nil
}
