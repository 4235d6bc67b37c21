package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/openmined/journalsync/internal/blob"
	"github.com/openmined/journalsync/internal/utils"
)

const (
	EnvAccessKey    = EnvPrefix + "_ACCESS_KEY"
	EnvSecretKey    = EnvPrefix + "_SECRET_KEY"
	EnvSessionToken = EnvPrefix + "_SESSION_TOKEN"
	EnvToken        = EnvPrefix + "_TOKEN"
)

// LoadEnvFile loads envPath into the process environment if it exists.
// Variables that are already set win.
func LoadEnvFile(envPath string) error {
	if envPath == "" || !utils.FileExists(envPath) {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %s: %w", envPath, err)
	}
	slog.Debug("env file loaded", "path", envPath)
	return nil
}

// LoadCredentials reads the remote credentials from the environment. They are
// never written to the config file.
func LoadCredentials() blob.Credentials {
	return blob.Credentials{
		AccessKey:    os.Getenv(EnvAccessKey),
		SecretKey:    os.Getenv(EnvSecretKey),
		SessionToken: os.Getenv(EnvSessionToken),
		Token:        os.Getenv(EnvToken),
	}
}
